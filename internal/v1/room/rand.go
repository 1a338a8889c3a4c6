package room

import "math/rand"

// stdRollDie rolls one six-sided die. It is a package-level var-indirected
// function (see game.go's rollDie) so tests can pin dice outcomes.
func stdRollDie() int {
	return rand.Intn(6) + 1
}
