package agent

import (
	"fmt"
	"strings"
)

const documentSystemPrompt = `You are a helpful AI assistant answering questions about a document.

The document content is provided below. Answer the user's question based ONLY on information mentioned in the document.
Do not infer information that isn't directly stated.

Format your answers in clear, readable HTML:
- Use <h3> tags for headings (not ## markdown style)
- Use <p> tags for paragraphs
- Use <ul> and <li> tags for lists
- Use <b> or <strong> tags for emphasis

Always be concise and focused on answering the question directly.`

const transcriptSystemPrompt = `You are a helpful AI assistant answering questions about a transcribed audio file or recording.

The transcription is provided below. Answer the user's question based ONLY on information explicitly mentioned in the transcription.
Do not infer information that isn't directly stated.

Format your answers in clear, readable HTML:
- Use <h3> tags for headings (not ## markdown style)
- Use <p> tags for paragraphs
- Use <ul> and <li> tags for lists
- Use <b> or <strong> tags for emphasis

Always be concise and focused on answering the question directly.`

const transcriptSummaryAddendum = `

This is a summarization request, so format your response as follows:
1. A brief overview paragraph (2-3 sentences)
2. Key points from the transcription, organized as a list using <ul> and <li> tags
3. If relevant, include a brief conclusion`

func sourceKind(isTranscript bool) string {
	if isTranscript {
		return "transcription"
	}
	return "document"
}

func systemInstruction(req Request) string {
	if !req.IsTranscript {
		return documentSystemPrompt
	}
	if req.Task == TaskSummarize {
		return transcriptSystemPrompt + transcriptSummaryAddendum
	}
	return transcriptSystemPrompt
}

func contentHeader(req Request) string {
	if req.IsTranscript {
		return "Here is the audio transcription"
	}
	return "Here is the document content"
}

// segmentInstruction is the task text for PART i of n (i is 1-based).
func segmentInstruction(req Request, i, n int) string {
	kind := sourceKind(req.IsTranscript)
	if req.Task == TaskSummarize {
		return fmt.Sprintf("Please summarize this PART %d of %d of the %s. Focus on key points only, independent of the other parts:", i, n, kind)
	}
	return fmt.Sprintf("This is PART %d of %d of the %s. Based on this part only, please answer the following question: %s", i, n, kind, req.Question)
}

// wholeInstruction is used when a document is answered in one call without parts.
func wholeInstruction(req Request) string {
	if req.Task == TaskSummarize {
		return fmt.Sprintf("Please summarize the key points from this %s.", sourceKind(req.IsTranscript))
	}
	return req.Question
}

func userMessage(req Request, text, instruction string) string {
	return fmt.Sprintf("%s:\n\n%s\n\n%s", contentHeader(req), text, instruction)
}

func recombineInstruction(req Request, parts []string) string {
	kind := sourceKind(req.IsTranscript)
	var b strings.Builder
	if req.Task == TaskSummarize {
		fmt.Fprintf(&b, "You received the following %d summaries of different parts of a %s.\n", len(parts), kind)
		b.WriteString("Please combine them into one coherent, well-organized summary. Remove redundancy but preserve all key information.\n")
		b.WriteString("Do not mention the parts or their numbering in your answer:\n\n")
		for i, p := range parts {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "PART %d SUMMARY:\n%s", i+1, p)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "You received the following %d answers to the question %q from different parts of a %s.\n", len(parts), req.Question, kind)
	b.WriteString("Please combine them into one coherent, non-redundant answer that addresses the question fully.\n")
	b.WriteString("Do not mention the parts or their numbering in your answer:\n\n")
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "ANSWER FROM PART %d:\n%s", i+1, p)
	}
	return b.String()
}

func fallbackText(req Request, parts []string) string {
	prefix := "COMBINED ANSWER (automatically assembled, not unified due to error):\n\n"
	if req.Task == TaskSummarize {
		prefix = "COMBINED SUMMARY (automatically assembled, not unified due to error):\n\n"
	}
	return prefix + strings.Join(parts, "\n\n---\n\n")
}

// singleCallFailureText stands in for the reply when the only backend call fails.
func singleCallFailureText(req Request) string {
	what := "answer"
	if req.Task == TaskSummarize {
		what = "summary"
	}
	return fmt.Sprintf("The %s could not be produced because the backend call failed. Please try again later.\n\n%s",
		what, failureMarker(0))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
