package models

const (
	// FallbackAnswer is the exact phrase the model is told to use when the
	// context does not contain the answer.
	FallbackAnswer   = "I don't know"
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	DefaultSourceKey = "prompt"
)

var (
	AnswerPromptTemplate = `You are a helpful assistant. Given the following context and question, generate an answer based on this context only. In the answer, try to provide as much text possible from the response section in the source document context without making it yourself. If the answer is not found in the context, kindly state 'I don't know'. Do not try to make up an answer.

CONTEXT: %s
QUESTION: %s

ANSWER:`
)
