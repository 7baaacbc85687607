// Package chat answers user messages with a language model, grounding the
// answer in retrieved documents when they are relevant to the question.
//
// Each turn is recorded in the session history. Recent history is folded
// into the retrieval query so follow-up questions find the same documents.
// Answers are returned whole by Service.Chat or as a sequence of events by
// Service.Stream.
package chat
