package memory

import "strings"

type Role string

const RoleUser Role = "user"

// Turn is one utterance waiting in the short-term buffer.
type Turn struct {
	Role Role
	Text string
}

// String renders the turn the way it appears in prompts, e.g. "User: hi".
func (t Turn) String() string {
	role := string(t.Role)
	if role == "" {
		role = string(RoleUser)
	}
	return strings.ToUpper(role[:1]) + role[1:] + ": " + t.Text
}

// Buffer is the short-term tier. It is owned by a single session and is
// not safe for concurrent use.
type Buffer struct {
	turns []Turn
	count int
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a turn at the end and bumps the counter.
func (b *Buffer) Append(t Turn) {
	b.turns = append(b.turns, t)
	b.count++
}

func (b *Buffer) Size() int {
	return len(b.turns)
}

// Count is the number of turns appended since the last drain.
func (b *Buffer) Count() int {
	return b.count
}

func (b *Buffer) IsEmpty() bool {
	return len(b.turns) == 0
}

// Lines renders the buffered turns without draining them.
func (b *Buffer) Lines() []string {
	lines := make([]string, len(b.turns))
	for i, t := range b.turns {
		lines[i] = t.String()
	}
	return lines
}

// Drain hands back the current generation of turns and leaves the buffer
// empty with its counter reset.
func (b *Buffer) Drain() []Turn {
	out := b.turns
	b.turns = nil
	b.count = 0
	return out
}
