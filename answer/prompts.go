package answer

import (
	"strconv"
	"strings"

	"github.com/poiesic/studyrag/core"
)

const qaTemplate = `You are a helpful study assistant. Answer the following question based ONLY on the provided context from the student's documents.

**Rules:**
1. Only use information from the provided context
2. If the answer is not in the context, say "I couldn't find this information in your documents."
3. Be concise and clear
4. Cite which document the information comes from

**Context:**
{context}

**Question:** {question}

**Answer:**`

const summaryTemplate = `You are a helpful study assistant. Create a comprehensive summary of the provided content from the student's documents.

**Rules:**
1. Summarize the key points from the context
2. Organize the summary with bullet points or sections
3. Be concise but complete
4. Include the main concepts and important details

**Content to Summarize:**
{context}

**User Request:** {question}

**Summary:**`

const quizTemplate = `You are a helpful study assistant. Generate a quiz based on the provided content from the student's documents.

**Rules:**
1. Create 5 multiple choice questions (MCQs)
2. Each question should have 4 options (A, B, C, D)
3. Mark the correct answer
4. Questions should test understanding, not just memorization
5. Format clearly with question numbers

**Content:**
{context}

**User Request:** {question}

**Quiz:**`

// promptBuilder fills a mode template with retrieved context and the user's question.
type promptBuilder func(context, question string) string

func fromTemplate(tmpl string) promptBuilder {
	return func(context, question string) string {
		// One pass, so braces inside the context or question are left alone.
		return strings.NewReplacer("{context}", context, "{question}", question).Replace(tmpl)
	}
}

// prompts maps each mode to its template. The set is fixed at compile time.
var prompts = map[core.Mode]promptBuilder{
	core.ModeQA:      fromTemplate(qaTemplate),
	core.ModeSummary: fromTemplate(summaryTemplate),
	core.ModeQuiz:    fromTemplate(quizTemplate),
}

// BuildPrompt renders the template for mode. Unknown modes use the QA template.
func BuildPrompt(mode core.Mode, context, question string) string {
	build, ok := prompts[mode]
	if !ok {
		build = prompts[core.ModeQA]
	}
	return build(context, question)
}

// BuildContext joins results as "[Source N: filename]\ncontent" blocks in ranking order.
func BuildContext(results []core.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		filename := r.Metadata.Filename
		if filename == "" {
			filename = "Document"
		}
		parts[i] = "[Source " + strconv.Itoa(i+1) + ": " + filename + "]\n" + r.Content
	}
	return strings.Join(parts, "\n\n---\n\n")
}
