// Package naming generates executor names.
package naming

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Prefix is the leading part of every generated executor name.
const Prefix = "MicroChainExecutor"

// Generator yields executor names. Implementations must be safe for sequential use;
// a run asks for exactly one name.
type Generator interface {
	Next() string
}

// RandomGenerator yields MicroChainExecutor<n> with n in [0, 1_000_000).
type RandomGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomGenerator seeds a generator. Equal seeds produce equal sequences.
func NewRandomGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{rnd: rand.New(rand.NewSource(seed))}
}

// Next implements Generator.
func (g *RandomGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%s%d", Prefix, g.rnd.Intn(1_000_000))
}

// UUIDGenerator yields MicroChainExecutor<first uuid segment>.
type UUIDGenerator struct{}

// Next implements Generator.
func (UUIDGenerator) Next() string {
	id := uuid.New().String()
	return Prefix + strings.ToUpper(id[:8])
}

// Sequence replays fixed names, then continues with numbered fallbacks.
type Sequence struct {
	mu    sync.Mutex
	names []string
	n     int
}

// NewSequence returns a deterministic generator for tests.
func NewSequence(names ...string) *Sequence {
	return &Sequence{names: names}
}

// Next implements Generator.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	if s.n <= len(s.names) {
		return s.names[s.n-1]
	}
	return fmt.Sprintf("%s%d", Prefix, s.n)
}

var imageNameInvalid = regexp.MustCompile(`[^a-z0-9_.-]+`)

// ImageName converts an executor name into a valid lowercase image repository name.
func ImageName(executorName string) string {
	name := imageNameInvalid.ReplaceAllString(strings.ToLower(executorName), "-")
	name = strings.Trim(name, "-._")
	if name == "" {
		return "executor"
	}
	return name
}
