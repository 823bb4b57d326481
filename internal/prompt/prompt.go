// Package prompt holds the static instruction text sent to the generation backend.
// Every function is pure: it only formats its arguments into the template.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dyluth/microchain/internal/artifact"
)

// GeneralGuidelines is prepended to every generation prompt.
func GeneralGuidelines() string {
	return "The code you write is production ready. " +
		"Every file starts with comments describing what the code is doing before it starts. " +
		"You do not write the code in a single file but split it into the files requested. " +
		"You use type hints and docstrings. " +
		"Your code does not contain placeholders or unimplemented functions. " +
		"You only import packages that are installed by the requirements file. " +
		"Bear in mind that the executor runs inside a container without a GPU.\n\n"
}

// NotAllowed lists the constraints every executor must respect.
func NotAllowed() string {
	return "\nThe executor must not use the GPU. " +
		"The executor must not access a database. " +
		"The executor must not access a display. " +
		"The executor must not access external APIs that require an API key. " +
		"The executor must not load data from the local file system unless it was created by the executor itself. " +
		"The executor must not use a pre-trained model unless it is explicitly mentioned in the description. " +
		"The executor must not train a model. " +
		"The executor must not use any attribute of Document except Document.text.\n"
}

func codeFileWrapping(fileName, tag string) string {
	return fmt.Sprintf("You must provide the complete file with the exact same syntax to wrap the code:\n"+
		"**%s**\n```%s\n...code...\n```\n\n", fileName, tag)
}

// ExecutorTask asks for the executor source file.
func ExecutorTask(name, description, scenario string, packages []string) string {
	return fmt.Sprintf(`Write the executor called '%s'.
It matches the following description: '%s'.
It will be tested with the following scenario: '%s'.
For the implementation use the following packages: '%s'.
Have in mind that d.uri is never a path to a local file. It is always a url.
%s
The executor has a single endpoint '/process' which takes a DocumentArray and returns it with every Document.text replaced by the result.
The code does not write any files to the file system.
`, name, description, scenario, strings.Join(packages, ", "), NotAllowed()) +
		codeFileWrapping(artifact.ExecutorFile, "python")
}

// ChainOfThoughtCreation asks the model to reason about the approach before writing code.
func ChainOfThoughtCreation() string {
	return "First, write down some non-obvious thoughts about the challenges of the task and give multiple approaches on how you handle them. " +
		"For example, the given package could be used in different ways and not all of them obey the rules. " +
		"Discuss the pros and cons for all of these approaches and then decide for one of the approaches. " +
		"Then write as I told you.\n"
}

// ChainOfThoughtOptimization asks for a compressed, final-form version of a draft file.
func ChainOfThoughtOptimization(tag, fileName string) string {
	return fmt.Sprintf("First, write down an extensive list of obvious and non-obvious observations about %s that could need an adjustment. "+
		"Explain why. Think if all the changes are required and finally decide for the changes you want to make, "+
		"but you are not allowed to disregard the instructions in the previous message. "+
		"Be very hesitant to change the code. Only make a change if you are sure that it is necessary.\n"+
		"Output only %s\nWrite the whole content of %s - even if you decided to change only a small thing or even nothing.\n",
		fileName, fileName, fileName) + codeFileWrapping(fileName, tag)
}

// TestExecutorTask asks for the test file of the executor.
func TestExecutorTask(name, scenario string) string {
	return fmt.Sprintf(`Write a single test case that tests the executor '%s' with the following test scenario: '%s'.
The test must start the executor in process and call its '/process' endpoint.
The test must not use the GPU. The test must not depend on files that are not created by the test itself.
The test prints the result of the executor so that a failing run can be understood from its output.
`, name, scenario) + codeFileWrapping(artifact.TestExecutorFile, "python")
}

// RequirementsTask asks for the dependency manifest.
func RequirementsTask(frameworkVersion string) string {
	return fmt.Sprintf(`Write the content of the requirements.txt file.
Make sure to include pytest.
Make sure that jina==%s is part of it.
All versions are fixed using ~=, ==, <, >, <=, >=. The package versions must not contradict each other.
`, frameworkVersion) + codeFileWrapping(artifact.RequirementsFile, "")
}

// DockerTask asks for the container definition.
func DockerTask() string {
	return `Write the Dockerfile that defines the environment with all necessary dependencies that the executor uses.
The Dockerfile runs the test during the build process.
It is important to make sure that all libs are installed that are required by the python packages.
Usually libraries are installed with apt-get.
Be aware that the machine the docker container is running on does not have a GPU - only CPU.
Add the config.yml file to the Dockerfile.
The base image of the Dockerfile is FROM jinaai/jina:3.14.1-py39-standard.
The entrypoint is ENTRYPOINT ["jina", "executor", "--uses", "config.yml"].
` + codeFileWrapping(artifact.DockerFile, "dockerfile")
}

// PackageSelectionTask asks for ranked package subsets wrapped as packages.csv.
func PackageSelectionTask(description string, maxRows int) string {
	return fmt.Sprintf(`
Here is the task description of the problem you need to solve:
"%s"
First, write down all the subtasks you need to solve which require python packages.
For each subtask:
    Provide a list of 1 to 3 python packages you could use to solve the subtask.
    For each package:
        Write down some non-obvious thoughts about the challenges you might face for the task and give multiple approaches on how you handle them.
        For example, there might be some packages you must not use because they do not obey the rules:
        %s
        Discuss the pros and cons for all of these packages.
Create a list of package subsets that you could use to solve the task.
The list is sorted in a way that the most promising subset of packages is at the top.
The maximum length of the list is %d.

The output must be a list of lists wrapped into `+"```"+` and starting with **packages.csv** like this:
**packages.csv**
`+"```"+`
package1,package2
package2,package3,...
...
`+"```"+`
`, description, NotAllowed(), maxRows)
}

// RepairTask builds the repair prompt for one failed deploy attempt.
// previousError is omitted when empty.
func RepairTask(description, scenario, files, previousError, currentError string) string {
	var b strings.Builder
	b.WriteString("General rules: ")
	b.WriteString(NotAllowed())
	b.WriteString("Here is the description of the task the executor must solve:\n")
	b.WriteString(description)
	b.WriteString("\n\nHere is the test scenario the executor must pass:\n")
	b.WriteString(scenario)
	b.WriteString("\n\nHere are all the files I use:\n")
	b.WriteString(files)
	if previousError != "" {
		b.WriteString("This is an error that is already fixed before:\n")
		b.WriteString(previousError)
	}
	b.WriteString("\n\nNow, I get the following error:\n")
	b.WriteString(currentError)
	b.WriteString("\n")
	b.WriteString("Think quickly about possible reasons. " +
		"Then output the files that need change. " +
		"Don't output files that don't need change. " +
		"If you output a file, then write the complete file. " +
		"Use the exact same syntax to wrap the code:\n" +
		"**...**\n```...\n...code...\n```\n\n")
	return b.String()
}

// PlaygroundTask asks for a streamlit front-end wired to the deployed host.
func PlaygroundTask(name, host string) string {
	return fmt.Sprintf(`
Create a playground for the executor %s using streamlit.
The executor is hosted on %s.
This is an example how you can connect to the executor assuming the document (d) is already defined:
from jina import Client, Document, DocumentArray
client = Client(host='%s')
response = client.post('/process', inputs=DocumentArray([d]))
print(response[0].text) # can also be blob in case of image/audio..., this should be visualized in the streamlit app
`, name, host, host)
}

// Rules prefixes a follow-up turn with the not-allowed constraints.
func Rules() string {
	return "General rules: " + NotAllowed()
}
