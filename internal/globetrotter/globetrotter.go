// Package globetrotter defines the core domain types and error kinds shared
// by the store, the synchronization engine and the HTTP surface.
// It has zero external dependencies.
package globetrotter

import "time"

// Challenge is the durable record of a two-player session. JSON names follow
// the wire format clients already consume.
type Challenge struct {
	ID                 string    `json:"id"`
	ChallengerUsername string    `json:"challenger_username"`
	FriendUsername     *string   `json:"friend_username"`
	QuestionIDs        []int64   `json:"question_ids"`
	ChallengerScore    *int      `json:"challenger_score"`
	FriendScore        *int      `json:"friend_score"`
	Started            bool      `json:"started"`
	CreatedAt          time.Time `json:"created_at"`
}

// Friend returns the friend username, or "" while the slot is empty.
func (c Challenge) Friend() string {
	if c.FriendUsername == nil {
		return ""
	}
	return *c.FriendUsername
}

// Ready reports whether both participant slots are filled.
func (c Challenge) Ready() bool {
	return c.ChallengerUsername != "" && c.Friend() != ""
}

// RoleOf returns the role username plays in the challenge.
func (c Challenge) RoleOf(username string) Role {
	switch {
	case username == "":
		return RoleNone
	case username == c.ChallengerUsername:
		return RoleChallenger
	case username == c.Friend():
		return RoleFriend
	default:
		return RoleNone
	}
}

// QuestionCount is the fixed number of rounds of the challenge.
func (c Challenge) QuestionCount() int { return len(c.QuestionIDs) }

type Role int

const (
	RoleNone Role = iota
	RoleChallenger
	RoleFriend
)

func (r Role) String() string {
	switch r {
	case RoleChallenger:
		return "challenger"
	case RoleFriend:
		return "friend"
	default:
		return "none"
	}
}

// ChallengeUpdate carries the fields of a partial update. Nil fields are left
// untouched.
type ChallengeUpdate struct {
	FriendUsername  *string
	ChallengerScore *int
	FriendScore     *int
}

// Destination is a catalog entry: the city a question asks for plus the
// clues and facts shown around it.
type Destination struct {
	ID       int64    `json:"id" yaml:"id"`
	City     string   `json:"city" yaml:"city"`
	Country  string   `json:"country" yaml:"country"`
	Clues    []string `json:"clues" yaml:"clues"`
	FunFacts []string `json:"fun_fact" yaml:"fun_fact"`
	Trivia   []string `json:"trivia" yaml:"trivia"`
}

// Question is the client view of a destination: clues and four options,
// never the answer itself.
type Question struct {
	ID      int64    `json:"id"`
	Clues   []string `json:"clues"`
	Options []string `json:"options"`
	FunFact []string `json:"fun_fact"`
	Trivia  []string `json:"trivia"`
}
