// Package questions is the static question bank of the three round types.
package questions

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed questions.json
var bankJSON []byte

type Coding struct {
	ID             int    `json:"id"`
	Language       string `json:"language"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	StarterCode    string `json:"starter_code"`
	ExpectedOutput string `json:"expected_output"`
	Hint           string `json:"hint"`
}

// Accept lists marker alternatives: a submission passes when it contains
// every marker of at least one alternative.
type Accept [][]string

type React struct {
	ID               int      `json:"id"`
	Title            string   `json:"title"`
	Difficulty       string   `json:"difficulty"`
	Description      string   `json:"description"`
	StarterCode      string   `json:"starter_code"`
	ExpectedBehavior string   `json:"expected_behavior"`
	Hint             string   `json:"hint"`
	TestCases        []string `json:"test_cases"`
	Solution         string   `json:"solution"`
	Accept           Accept   `json:"accept"`
}

type JavaCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

type Java struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Difficulty  string     `json:"difficulty"`
	Description string     `json:"description"`
	StarterCode string     `json:"starter_code"`
	TestCases   []JavaCase `json:"test_cases"`
	Accept      Accept     `json:"accept"`
}

type Bank struct {
	Coding []Coding `json:"coding"`
	React  []React  `json:"react"`
	Java   []Java   `json:"java"`
}

func Load() (*Bank, error) {
	return Parse(bankJSON)
}

func Parse(raw []byte) (*Bank, error) {
	var b Bank
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}
	if len(b.Coding) == 0 || len(b.React) == 0 || len(b.Java) == 0 {
		return nil, fmt.Errorf("question bank is missing a round")
	}
	for _, q := range b.React {
		if len(q.Accept) == 0 {
			return nil, fmt.Errorf("react question %d has no accept markers", q.ID)
		}
	}
	for _, q := range b.Java {
		if len(q.Accept) == 0 {
			return nil, fmt.Errorf("java question %s has no accept markers", q.ID)
		}
	}
	return &b, nil
}

// Public views leave out expected output, solutions and markers.

type PublicCoding struct {
	ID          int    `json:"id"`
	Language    string `json:"language"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StarterCode string `json:"starterCode"`
	Hint        string `json:"hint"`
}

type PublicReact struct {
	ID               int      `json:"id"`
	Title            string   `json:"title"`
	Difficulty       string   `json:"difficulty"`
	Description      string   `json:"description"`
	StarterCode      string   `json:"starterCode"`
	ExpectedBehavior string   `json:"expectedBehavior"`
	Hint             string   `json:"hint"`
	TestCases        []string `json:"testCases"`
}

type PublicJava struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Difficulty  string     `json:"difficulty"`
	Description string     `json:"description"`
	StarterCode string     `json:"starterCode"`
	TestCases   []JavaCase `json:"testCases"`
}

func (b *Bank) PublicCoding() []PublicCoding {
	out := make([]PublicCoding, 0, len(b.Coding))
	for _, q := range b.Coding {
		out = append(out, PublicCoding{
			ID:          q.ID,
			Language:    q.Language,
			Title:       q.Title,
			Description: q.Description,
			StarterCode: q.StarterCode,
			Hint:        q.Hint,
		})
	}
	return out
}

func (b *Bank) PublicReact() []PublicReact {
	out := make([]PublicReact, 0, len(b.React))
	for _, q := range b.React {
		out = append(out, PublicReact{
			ID:               q.ID,
			Title:            q.Title,
			Difficulty:       q.Difficulty,
			Description:      q.Description,
			StarterCode:      q.StarterCode,
			ExpectedBehavior: q.ExpectedBehavior,
			Hint:             q.Hint,
			TestCases:        q.TestCases,
		})
	}
	return out
}

func (b *Bank) PublicJava() []PublicJava {
	out := make([]PublicJava, 0, len(b.Java))
	for _, q := range b.Java {
		out = append(out, PublicJava{
			ID:          q.ID,
			Title:       q.Title,
			Difficulty:  q.Difficulty,
			Description: q.Description,
			StarterCode: q.StarterCode,
			TestCases:   q.TestCases,
		})
	}
	return out
}
