package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/mindsearch/models"
)

const plannerTemplate = `You are a task decomposer with access to internet search.
Understand the user's question and, depending on its complexity, split it into two or more simple, independent sub-tasks with no dependencies between them, so that together they gather enough information to answer it.
For each sub-task decide whether an internet search is needed to complete it. If it is, write one or more search keys that will retrieve enough information.
The answer must be a <plans> XML block containing a JSON array in this format: [{"planName":"","needSearch": true/false, "searchKeys":[]}]. Do not output anything else.

Examples for reference:

<example>
1. Question:
<question>
How do I keep Redis and MySQL data consistent
</question>

Answer:
<plans>
[
  {
    "needSearch": true,
    "planName": "Research consistency strategies between Redis and MySQL",
    "searchKeys": ["Redis MySQL data consistency strategy"]
  },
  {
    "needSearch": true,
    "planName": "Understand how transactions and locks apply to Redis and MySQL",
    "searchKeys": ["transactions locks Redis MySQL"]
  }
]
</plans>

2. Question:
<question>
How was the opening ceremony of the Paris Olympics
</question>

Answer:
<plans>
[
  {
    "needSearch": true,
    "planName": "Collect basic facts about the Paris Olympics opening ceremony",
    "searchKeys": ["Paris Olympics opening ceremony facts"]
  },
  {
    "needSearch": true,
    "planName": "Find critic reviews and audience reactions",
    "searchKeys": ["Paris Olympics opening ceremony reviews", "Paris Olympics opening ceremony audience reaction"]
  },
  {
    "needSearch": true,
    "planName": "Analyse the technical and creative highlights of the ceremony",
    "searchKeys": ["Paris Olympics opening ceremony technical highlights", "Paris Olympics opening ceremony creative highlights"]
  }
]
</plans>
</example>

A plain greeting or small talk needs no search: answer it with one plan whose needSearch is false and whose searchKeys is empty.

Everything below is the actual conversation. Use it and the question to decompose the question into plans following the rules above.
<conversation>
%s
</conversation>

Question:
<question>
%s
</question>

Answer:
`

const outlineTemplate = `You are a mind map expert. Build a mind map for the user's question from your own knowledge and the text in the <context> XML block.

### Plan
1. Understand the question and the context:
   - Read the text in the <context> block.
   - Identify the information most relevant to the question.
2. Build the mind map:
   - Use standard markdown.
   - The user's question is the root node; everything expands from it.
   - The structure should have real depth.
   - Keep each level to at most 10 sibling nodes.
   - Never repeat a node and never add summary or conclusion nodes.
   - Keep each node short and precise.
   - Never output code blocks or backticks.
3. Answer:
   - Return only the mind map, nothing else.

<context>
%s
</context>

Example for reference:
<example>
# Keeping Redis and MySQL data consistent

## Consistency models
- ACID properties
  - Atomicity
  - Isolation
- Eventual consistency
  - Short-lived divergence
  - Convergence

## Synchronisation mechanisms
- Primary/replica replication
- Publish/subscribe
- Periodic verification

## Data sync methods
- Parsing the MySQL binlog
- Expiry times
- Message queue sync
</example>

Before answering, check that the map is complete, well structured, valid markdown and free of duplicate nodes, and refine it where needed.
`

const extractTemplate = `You are a text analyst who finds answers to a question inside a given text.
The <query> XML block holds the question. Find and summarise the answer to it from the text in the <text> XML block.
The answer must be accurate and concise and must not miss any key point.
If the text contains nothing about the question, answer exactly %s and nothing else.
Return only the answer, with no other message, text or XML block.

<query>
%s
</query>

<text>
%s
</text>

Make sure the answer comes from the provided text.`

const summarizeTemplate = `You are a text summariser. Summarise the text in the <text> XML block.
Do not leave out any key point.
Return only the summary, with no other message, text or XML block.
Format the answer as standard markdown.

<text>
%s
</text>`

const directTemplate = `<query>
%s
</query>
Make sure to answer the query.`

const responseTemplate = `You are MindSearch, an AI model that answers user queries with detailed, informative and relevant responses.

### Plan
1. Understand the <query> block and the search findings in the <context> block.
2. Understand the markdown outline in the <mindMap> block.
3. Write a structured response:
   - Introduction: open with a short introduction to the topic.
   - Body: a detailed, complete explanation that follows the outline in <mindMap>, explaining and expanding every node of it.
   - Conclusion: close with the main takeaways.
4. Cite sources from the <sources> block with their [n] number right after the sentence they support.
5. Prefer depth: expand explanations wherever needed and avoid short answers.

<query>
%s
</query>

<context>
%s
</context>

<sources>
%s
</sources>

<mindMap>
%s
</mindMap>

Before answering, check the response is complete, well organised, valid markdown and accurately cited, and improve it where needed.

Today's date is %s.
`

// FormatHistory renders the conversation as "User:"/"AI:" lines.
func FormatHistory(history []models.Turn) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		role := "User"
		if t.Role == models.RoleAssistant {
			role = "AI"
		}
		lines = append(lines, role+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

func plannerPrompt(query string, history []models.Turn) string {
	return fmt.Sprintf(plannerTemplate, FormatHistory(history), query)
}

func outlinePrompt(context string) string {
	return fmt.Sprintf(outlineTemplate, context)
}

func extractPrompt(planName, text string) string {
	return fmt.Sprintf(extractTemplate, noAnswer, planName, text)
}

func summarizePrompt(text string) string {
	return fmt.Sprintf(summarizeTemplate, text)
}

func directPrompt(planName string) string {
	return fmt.Sprintf(directTemplate, planName)
}

func responsePrompt(query, context, sources, outline string, now time.Time) string {
	return fmt.Sprintf(responseTemplate, query, context, sources, outline, now.UTC().Format(time.RFC3339))
}
