// Package grader checks submissions and prices them by the time left.
package grader

import (
	"math"
	"strings"

	"mindbuzzer/internal/questions"
)

// Output passes when the program's trimmed output contains the expected
// output.
func Output(actual, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	return strings.Contains(strings.TrimSpace(actual), expected)
}

// Markers passes when code holds every marker of at least one alternative.
func Markers(code string, accept questions.Accept) bool {
	for _, alt := range accept {
		if len(alt) == 0 {
			continue
		}
		ok := true
		for _, m := range alt {
			if !strings.Contains(code, m) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

const minJavaLength = 20

// Java also requires the starter code to have been changed into something
// of non-trivial length.
func Java(code string, q questions.Java) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == strings.TrimSpace(q.StarterCode) {
		return false
	}
	if len(trimmed) <= minJavaLength {
		return false
	}
	return Markers(code, q.Accept)
}

func React(code string, q questions.React) bool {
	if strings.TrimSpace(code) == strings.TrimSpace(q.StarterCode) {
		return false
	}
	return Markers(code, q.Accept)
}

// CodingScore is max(10, ceil(left/total*100)).
func CodingScore(left, total int) int {
	if total <= 0 {
		return 10
	}
	return max(10, int(math.Ceil(float64(clamp(left, total))/float64(total)*100)))
}

// ReactScore is 150 plus a speed bonus of max(10, floor(left/2)).
func ReactScore(left int) int {
	return 150 + max(10, max(left, 0)/2)
}

// JavaScore is 100 plus ceil(left/total*100).
func JavaScore(left, total int) int {
	if total <= 0 {
		return 100
	}
	return 100 + int(math.Ceil(float64(clamp(left, total))/float64(total)*100))
}

func clamp(v, hi int) int {
	return min(max(v, 0), hi)
}
