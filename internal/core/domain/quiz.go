package domain

import "time"

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return Difficulty(s), true
	}
	return "", false
}

// QuizItem is one validated true/false question. Type is always
// "true_false"; the field exists so stored sets stay self-describing.
type QuizItem struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Statement   string     `json:"statement"`
	AnswerBool  bool       `json:"answer_bool"`
	Explanation string     `json:"explanation,omitempty"`
	Citations   []Citation `json:"citations"`
}

const QuizTypeTrueFalse = "true_false"

type QuizSet struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"created_at"`
	Items      []QuizItem `json:"items"`
}

type QuizSetMeta struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"created_at"`
	Count      int        `json:"count"`
}
