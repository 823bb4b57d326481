package llmtest

import (
	"fmt"
	"regexp"

	"github.com/dyluth/microchain/internal/llm"
)

// fileRequest matches the "**name**\n```tag\n...code..." wrapping instruction in a prompt.
var fileRequest = regexp.MustCompile("\\*\\*([^*\\n]+)\\*\\*\\n```([^\\n]*)\\n\\.\\.\\.code\\.\\.\\.")

// RequestedFile returns the file name and tag that prompt asks the model to produce.
// The last instruction wins. ok is false when the prompt asks for no specific file.
func RequestedFile(prompt string) (name, tag string, ok bool) {
	matches := fileRequest.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return "", "", false
	}
	last := matches[len(matches)-1]
	if last[1] == "..." {
		return "", "", false
	}
	return last[1], last[2], true
}

// FileResponder answers each request with a labeled block for the requested file.
// Content comes from contents, or is synthesised from the file name when absent.
// Prompts that ask for no specific file get a short prose reply.
func FileResponder(contents map[string]string) func([]llm.Message) (string, error) {
	return func(messages []llm.Message) (string, error) {
		if len(messages) == 0 {
			return "", fmt.Errorf("empty request")
		}
		name, tag, ok := RequestedFile(messages[len(messages)-1].Content)
		if !ok {
			return "Thinking about the approach first.", nil
		}
		body, found := contents[name]
		if !found {
			body = "# generated " + name
		}
		return fmt.Sprintf("Here is the file.\n**%s**\n```%s\n%s\n```\n", name, tag, body), nil
	}
}
