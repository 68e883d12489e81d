package api

import "fmt"

func documentLabel(title string) string {
	if title == "" {
		return "document"
	}
	return title
}

func notesInstruction(title string) string {
	return fmt.Sprintf(`Generate comprehensive notes for this %s.
Identify all important topics, concepts, and details.
Format your response with clear headings, subheadings, and bullet points.
Focus on capturing the key information in a structured way that makes learning and review easy.`, documentLabel(title))
}

func quizInstruction(title string) string {
	return fmt.Sprintf(`Create 5 multiple choice quiz questions based on this %s.
Each question should test understanding of important concepts from the material.
For each question:
1. Write a clear question
2. Provide 4 possible answers
3. Indicate which answer is correct
4. Provide a brief explanation of why that answer is correct

Format your response as valid JSON using this exact structure:
[
  {
    "question": "Question text here?",
    "options": ["Option A", "Option B", "Option C", "Option D"],
    "answer": "The correct option text",
    "explanation": "Why this is the correct answer"
  }
]

Make sure your JSON is properly formatted with no trailing commas, all property names in quotes, and all string values in quotes.`, documentLabel(title))
}
