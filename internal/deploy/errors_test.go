package deploy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const pipResolverLine = "ERROR: pip's dependency resolver does not currently take into account all the packages that are installed. " +
	"This behaviour is the source of the following dependency conflicts."

var resolverWarningBuildLog = `Step 3/4 : RUN pip install -r requirements.txt
 ---> Running in 0a1b2c3d
` + pipResolverLine + `
jina 3.14.1 requires protobuf>=3.19.0, but you have protobuf 3.18.0 which is incompatible.
Successfully installed requests-2.31.0
Step 4/4 : RUN pytest
 ---> Running in 9f8e7d6c
1 passed in 0.41s
Successfully built 1b2c
Successfully tagged x:latest
`

const failedBuildLog = `Step 1/4 : FROM jinaai/jina:3.14.1-py39-standard
 ---> 1b2c3d4e5f60
Step 2/4 : COPY . /workdir/
 ---> Using cache
Step 3/4 : RUN pip install -r requirements.txt
 ---> Running in 0a1b2c3d
Successfully installed requests-2.31.0
Step 4/4 : RUN pytest test_executor.py
 ---> Running in 9f8e7d6c
E   ModuleNotFoundError: No module named 'bs4'
FAILED test_executor.py::test_classify
ERROR: The command '/bin/sh -c pytest test_executor.py' returned a non-zero code: 1
`

func TestProcessErrorMessage(t *testing.T) {
	t.Run("successful build is not an error", func(t *testing.T) {
		log := "Step 1/2 : FROM python:3.9\nStep 2/2 : RUN pytest\n3 passed in 0.52s\nSuccessfully built 1b2c3d4e\n"
		msg, failed := ProcessErrorMessage(log)
		assert.False(t, failed)
		assert.Empty(t, msg)
	})

	t.Run("pip resolver warning in a finished build is not an error", func(t *testing.T) {
		msg, failed := ProcessErrorMessage(resolverWarningBuildLog)
		assert.False(t, failed)
		assert.Empty(t, msg)
	})

	t.Run("pip resolver warning alone is not an error", func(t *testing.T) {
		_, failed := ProcessErrorMessage("Step 3/4 : RUN pip install -r requirements.txt\n" + pipResolverLine + "\n")
		assert.False(t, failed)
	})

	t.Run("pip resolver warning before a failing step", func(t *testing.T) {
		log := "Step 3/4 : RUN pip install -r requirements.txt\n" + pipResolverLine + "\n" +
			"Step 4/4 : RUN pytest\nE   ImportError: cannot import name 'Executor'\n" +
			BuildErrorPrefix + "The command '/bin/sh -c pytest' returned a non-zero code: 1\n"
		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.True(t, strings.HasPrefix(msg, "Step 4/4 : RUN pytest"), msg)
		assert.NotContains(t, msg, "dependency resolver")
	})

	t.Run("daemon error after success lines is an error", func(t *testing.T) {
		log := "Step 2/2 : RUN pytest\n1 passed\nSuccessfully built 1b2c\n" + BuildErrorPrefix + "failed to tag image: no space left on device\n"
		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.Contains(t, msg, "no space left on device")
	})

	t.Run("printed traceback in a finished build is not an error", func(t *testing.T) {
		log := "Step 2/2 : RUN pytest -s\nTraceback (most recent call last):\nValueError: expected in test\n1 passed\nSuccessfully built 1b2c\n"
		_, failed := ProcessErrorMessage(log)
		assert.False(t, failed)
	})

	t.Run("empty log is not an error", func(t *testing.T) {
		_, failed := ProcessErrorMessage("")
		assert.False(t, failed)
	})

	t.Run("failed build keeps tail from last step", func(t *testing.T) {
		msg, failed := ProcessErrorMessage(failedBuildLog)
		assert.True(t, failed)
		assert.True(t, strings.HasPrefix(msg, "Step 4/4 : RUN pytest test_executor.py"), msg)
		assert.Contains(t, msg, "No module named 'bs4'")
		assert.Contains(t, msg, "returned a non-zero code: 1")
		assert.NotContains(t, msg, "Step 3/4")
		assert.False(t, strings.HasSuffix(msg, "\n"))
	})

	t.Run("buildkit step headers", func(t *testing.T) {
		log := "#5 [2/3] COPY . /workdir/\n#5 DONE 0.1s\n#6 [3/3] RUN pytest\n#6 1.2 AssertionError\n#6 ERROR: process \"/bin/sh -c pytest\" did not complete successfully: exit code: 1\n"
		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.True(t, strings.HasPrefix(msg, "#6 [3/3] RUN pytest"), msg)
	})

	t.Run("python traceback without step header", func(t *testing.T) {
		log := "Traceback (most recent call last):\n  File \"executor.py\", line 3\nNameError: name 'x' is not defined\n"
		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.Equal(t, strings.TrimSuffix(log, "\n"), msg)
	})

	t.Run("long output is capped", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("Step 1/1 : RUN pytest\n")
		for i := 0; i < 100; i++ {
			fmt.Fprintf(&b, "line %d\n", i)
		}
		b.WriteString(BuildErrorPrefix + "boom\n")

		msg, failed := ProcessErrorMessage(b.String())
		assert.True(t, failed)
		lines := strings.Split(msg, "\n")
		assert.Len(t, lines, maxErrorLines)
		assert.Equal(t, BuildErrorPrefix+"boom", lines[len(lines)-1])
	})

	t.Run("crlf line endings", func(t *testing.T) {
		log := strings.ReplaceAll(failedBuildLog, "\n", "\r\n")
		msg, failed := ProcessErrorMessage(log)
		assert.True(t, failed)
		assert.NotContains(t, msg, "\r")
	})
}
