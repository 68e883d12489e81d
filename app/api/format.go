package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

type Quiz struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

var errNoQuizzes = errors.New("no quiz questions found")

// ParseQuizzes collects quiz questions from a model reply. It accepts clean JSON,
// several JSON arrays in one reply (parts joined after a failed recombination),
// JSON with common syntax slips, and numbered plain-text questions.
func ParseQuizzes(s string) ([]Quiz, error) {
	if qs := decodeQuizArrays(s); len(qs) > 0 {
		return qs, nil
	}
	if qs := decodeQuizArrays(cleanJSON(s)); len(qs) > 0 {
		return qs, nil
	}
	if qs := parseQuizText(s); len(qs) > 0 {
		return qs, nil
	}
	return nil, errNoQuizzes
}

func decodeQuizArrays(s string) []Quiz {
	var out []Quiz
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '[')
		if j < 0 {
			break
		}
		start := i + j

		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var batch []Quiz
		if err := dec.Decode(&batch); err != nil {
			i = start + 1
			continue
		}
		out = append(out, validQuizzes(batch)...)
		i = start + int(dec.InputOffset())
	}
	return out
}

func validQuizzes(qs []Quiz) []Quiz {
	out := qs[:0]
	for _, q := range qs {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 || strings.TrimSpace(q.Answer) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*\]`)
	unquotedKey      = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	smartQuotes      = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

func cleanJSON(s string) string {
	s = smartQuotes.Replace(s)
	s = trailingCommaObj.ReplaceAllString(s, "}")
	s = trailingCommaArr.ReplaceAllString(s, "]")
	return unquotedKey.ReplaceAllString(s, `$1"$2":`)
}

var (
	questionSplit = regexp.MustCompile(`(?mi)^\s*(?:question\s+\d+[:.)]|\d+[.)])\s*`)
	optionLine    = regexp.MustCompile(`^([A-Da-d])[.):]\s*(.+)$`)
	answerLine    = regexp.MustCompile(`(?i)^(?:correct answer|answer)\s*:\s*([A-D])\b`)
	explainLine   = regexp.MustCompile(`(?i)^explanation\s*:\s*(.*)$`)
)

// parseQuizText reads numbered questions with lettered options, an "Answer: X"
// line and an optional "Explanation:" line.
func parseQuizText(s string) []Quiz {
	var out []Quiz
	for _, block := range questionSplit.Split(s, -1) {
		lines := nonEmptyLines(block)
		if len(lines) < 3 {
			continue
		}

		q := Quiz{Question: lines[0]}
		answer := -1
		for _, line := range lines[1:] {
			switch {
			case optionLine.MatchString(line):
				q.Options = append(q.Options, strings.TrimSpace(optionLine.FindStringSubmatch(line)[2]))
			case answerLine.MatchString(line):
				answer = int(strings.ToUpper(answerLine.FindStringSubmatch(line)[1])[0] - 'A')
			case explainLine.MatchString(line):
				q.Explanation = strings.TrimSpace(explainLine.FindStringSubmatch(line)[1])
			case q.Explanation != "":
				q.Explanation += " " + line
			}
		}
		if answer >= 0 && answer < len(q.Options) {
			q.Answer = q.Options[answer]
		}
		out = append(out, q)
	}
	return validQuizzes(out)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func buildRepairPrompt(badOutput string) string {
	return fmt.Sprintf(`
You previously returned invalid quiz JSON.

Your task is to FIX the JSON.

RULES:
- Output ONLY a JSON array of objects with "question", "options", "answer" and "explanation"
- Do NOT add or remove questions
- Do NOT add explanations outside the JSON
- Do NOT include markdown

INVALID OUTPUT:
<<<
%s
>>>

Return the corrected JSON only.
`, badOutput)
}

// headingShift renders "#" as <h2>, "##" as <h3> and so on; the page title owns <h1>.
type headingShift struct{}

func (headingShift) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level < 6 {
			h.Level++
		}
		return ast.WalkContinue, nil
	})
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithASTTransformers(util.Prioritized(headingShift{}, 100))),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// MarkdownToHTML renders a model reply as HTML. Replies that already contain
// HTML tags keep them.
func MarkdownToHTML(s string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return s
	}
	return strings.TrimSpace(buf.String())
}
