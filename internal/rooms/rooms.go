// Package rooms generates memorable room ids.
package rooms

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const wordsPerID = 4

// NewID returns an id such as "kitten-waffle-stardust-happy", one word from
// each of four different lists. taken, when non-nil, rejects ids in use.
func NewID(taken func(string) bool) string {
	pools := [][]string{animals, dishes, names, randomWords, adjectives, extras}

	for {
		words := make([]string, 0, wordsPerID)
		for _, i := range pick(len(pools), wordsPerID) {
			pool := pools[i]
			words = append(words, pool[randomIndex(len(pool))])
		}

		id := strings.Join(words, "-")
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// pick returns k distinct indexes below n.
func pick(n, k int) []int {
	used := make(map[int]bool, k)
	out := make([]int, 0, k)
	for len(out) < k {
		i := randomIndex(n)
		if !used[i] {
			used[i] = true
			out = append(out, i)
		}
	}
	return out
}

func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("rooms: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}
