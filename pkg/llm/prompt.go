package llm

import (
	"fmt"
	"os"
	"sync"
)

// systemPromptCache caches the on-disk system-prompt preamble for the
// process lifetime.
var systemPromptCache struct {
	sync.Once
	text string
	err  error
}

// defaultSystemPromptPath is the default location of the system-prompt
// preamble; callers in tests and alternate deployments override it via
// LoadSystemPrompt's path argument.
const defaultSystemPromptPath = "/etc/pipelineforge/system-prompt.txt"

// LoadSystemPrompt reads and caches the system-prompt preamble from
// path. Subsequent calls with any path return the cached value; the
// file is read at most once per process.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		path = defaultSystemPromptPath
	}
	systemPromptCache.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			systemPromptCache.err = err
			return
		}
		systemPromptCache.text = string(data)
	})
	return systemPromptCache.text, systemPromptCache.err
}

// BuildGeneratePrompt composes the default generation prompt: the
// system preamble plus the repository analysis, reference template, and
// recent feedback entries used to prime the LLM.
func BuildGeneratePrompt(systemPreamble string, analysis, referenceTemplate, feedback string) (system, prompt string) {
	system = systemPreamble
	prompt = fmt.Sprintf(`## Repository analysis
%s

## Reference template
%s

## Recent feedback
%s

Generate the complete set of pipeline artifacts for this repository.
Output each file in a marker-delimited section: ---FILE:<name>--- followed
by its full content, then ---END---.`, analysis, referenceTemplate, feedback)
	return system, prompt
}
