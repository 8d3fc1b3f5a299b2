package prompts

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Feature names identify one prompt template per editor operation.
const (
	FeatureCompletion    = "code_completion"
	FeatureExplanation   = "code_explanation"
	FeatureGeneration    = "code_generation"
	FeatureRefactoring   = "code_refactoring"
	FeatureBugDetection  = "bug_detection"
	FeatureCorrection    = "error_correction"
	FeatureDocumentation = "documentation"
	FeatureChat          = "chat"
	FeatureFileCreation  = "file_creation"
)

// Template pairs a static system prompt with a parameterized user prompt.
type Template struct {
	Feature string
	System  string
	user    *template.Template
}

var registry = map[string]*Template{}

func register(feature, system, user string) {
	registry[feature] = &Template{
		Feature: feature,
		System:  system,
		user:    template.Must(template.New(feature).Parse(user)),
	}
}

// Available returns a sorted list of registered feature names.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether feature is registered.
func Has(feature string) bool {
	_, ok := registry[feature]
	return ok
}

// Render fills the user template for the feature and returns both prompts.
func Render(feature string, data any) (system string, user string, err error) {
	tmpl, ok := registry[feature]
	if !ok {
		return "", "", fmt.Errorf("unknown feature: %s", feature)
	}

	var sb strings.Builder
	if err := tmpl.user.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", feature, err)
	}
	return tmpl.System, sb.String(), nil
}

// Per-feature template data.

type CompletionData struct {
	FileName    string
	Language    string
	CodeBefore  string
	CodeAfter   string
	CurrentLine string
}

type CodeData struct {
	FileName string
	Language string
	Code     string
}

type GenerationData struct {
	FileName    string
	Language    string
	Context     string
	Requirement string
}

type BugData struct {
	FileName     string
	Language     string
	Code         string
	ErrorMessage string
}

type CorrectionData struct {
	FileName     string
	Language     string
	Code         string
	ErrorMessage string
	StackTrace   string
}

type ChatData struct {
	FileName    string
	Language    string
	FileContext string
	Question    string
}

type FileCreationData struct {
	ProjectContext string
	FileName       string
	Language       string
	Requirements   string
	RelatedFiles   string
}

func init() {
	register(FeatureCompletion,
		`You are an expert coding assistant integrated into a code editor.
Your role is to provide inline code completions that are:
- Contextually relevant to the current code
- Following the existing code style and patterns
- Syntactically correct
- Concise and practical

IMPORTANT: Only provide the code completion, no explanations or markdown.
Complete the code naturally from where the user left off.`,
		`File: {{.FileName}}
Language: {{.Language}}

Code before cursor:
{{.CodeBefore}}

Code after cursor:
{{.CodeAfter}}

Current line: {{.CurrentLine}}

Provide a natural code completion from this point. Return only the completion code.`)

	register(FeatureExplanation,
		`You are an expert programming teacher and code analyst.
Explain code in a clear, educational manner that helps developers understand:
- What the code does
- How it works
- Key concepts and patterns used
- Potential improvements or concerns

Be concise but thorough.`,
		"File: {{.FileName}}\nLanguage: {{.Language}}\n\nCode to explain:\n```{{.Language}}\n{{.Code}}\n```\n\nProvide a clear explanation of this code.")

	register(FeatureGeneration,
		`You are an expert code generator.
Generate clean, efficient, and well-documented code based on user requirements.

Guidelines:
- Follow best practices and design patterns
- Include proper error handling
- Add helpful comments
- Use clear variable names
- Make code maintainable

Return ONLY the code implementation, no markdown code blocks.`,
		`File: {{.FileName}}
Language: {{.Language}}

Context (surrounding code):
{{.Context}}

Requirement/TODO:
{{.Requirement}}

Generate the code implementation:`)

	register(FeatureRefactoring,
		`You are an expert code reviewer and refactoring specialist.
Analyze code and suggest improvements for:
- Code readability and maintainability
- Performance optimization
- Best practices adherence
- Design patterns
- Potential bugs or issues

Provide specific, actionable suggestions.`,
		"File: {{.FileName}}\nLanguage: {{.Language}}\n\nCode to refactor:\n```{{.Language}}\n{{.Code}}\n```\n\nAnalyze this code and provide:\n1. Issues or concerns found\n2. Specific refactoring suggestions\n3. Improved version of the code")

	register(FeatureBugDetection,
		`You are an expert debugging assistant and error analyst.
Analyze code to find:
- Syntax errors
- Logic errors
- Potential runtime errors
- Edge cases not handled
- Security vulnerabilities

Provide clear explanations and fixes.`,
		"File: {{.FileName}}\nLanguage: {{.Language}}\n\nCode to analyze:\n```{{.Language}}\n{{.Code}}\n```\n\nError (if any):\n{{.ErrorMessage}}\n\nAnalyze for bugs and provide:\n1. Issues found\n2. Explanation of each issue\n3. Fixed code\n4. Prevention tips")

	register(FeatureCorrection,
		`You are an expert debugging and error correction assistant.
Your job is to:
1. Understand the error from stack traces or messages
2. Identify the root cause
3. Provide a corrected version of the code
4. Explain what was wrong and why the fix works

Be precise and provide working code.`,
		"File: {{.FileName}}\nLanguage: {{.Language}}\n\nCurrent Code:\n```{{.Language}}\n{{.Code}}\n```\n\nError Message:\n{{.ErrorMessage}}\n\nStack Trace (if available):\n{{.StackTrace}}\n\nProvide:\n1. Root cause analysis\n2. Corrected code\n3. Explanation of the fix")

	register(FeatureDocumentation,
		`You are an expert technical documentation writer.
Generate clear, comprehensive documentation that includes:
- Function/class purpose
- Parameters and return values
- Usage examples
- Edge cases and exceptions

Follow standard documentation formats (docstrings, JSDoc, etc.).`,
		"File: {{.FileName}}\nLanguage: {{.Language}}\n\nCode to document:\n```{{.Language}}\n{{.Code}}\n```\n\nGenerate appropriate documentation:")

	register(FeatureChat,
		`You are an expert programming assistant integrated into a code editor.
You help developers with:
- Code questions and explanations
- Implementation guidance
- Debugging assistance
- Best practices advice
- Architecture decisions
- Code reviews and improvements

You maintain conversation context and can reference previous messages.
Be helpful, concise, and provide code examples when relevant.
Format code blocks with `+"```"+` for better readability.`,
		`Current file: {{.FileName}} ({{.Language}})

File context:
{{.FileContext}}

User question:
{{.Question}}`)

	register(FeatureFileCreation,
		`You are an expert software architect and code generator.
Create complete, production-ready files/modules based on requirements.

Guidelines:
- Follow language conventions and best practices
- Include necessary imports and dependencies
- Add comprehensive docstrings and comments
- Implement error handling
- Make code modular and maintainable

Return the complete file content.`,
		`Project Context:
{{.ProjectContext}}

File to create: {{.FileName}}
Language: {{.Language}}

Requirements:
{{.Requirements}}

Existing related files (for context):
{{.RelatedFiles}}

Generate the complete file content:`)
}
