package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"strata/internal/common"
	"strata/internal/db"
)

const seedIndexKey = "__cli_seed_index__"

func loadSeedIndex(engine *db.DB) int {
	if val, err := engine.Get([]byte(seedIndexKey)); err == nil {
		if idx, err := strconv.Atoi(string(val)); err == nil {
			fmt.Printf("resumed seed index from %d\n", idx)
			return idx
		}
	}
	return 0
}

var kvPairs = [][2]string{
	{"apple", "artichoke"},
	{"banana", "broccoli"},
	{"cherry", "cabbage"},
	{"durian", "daikon"},
	{"elderberry", "eggplant"},
	{"fig", "fennel"},
	{"grapefruit", "ginger"},
	{"honeydew", "horseradish"},
	{"imbe", "ivygourd"},
	{"jackfruit", "jicama"},
	{"kiwi", "kale"},
	{"lime", "leek"},
	{"mango", "mushroom"},
	{"nectarine", "nopale"},
	{"orange", "okra"},
	{"peach", "peas"},
	{"quince", "quinoa"},
	{"raspberry", "radish"},
	{"strawberry", "spinach"},
	{"tangerine", "tomato"},
	{"ugni", "ube"},
	{"voavanga", "vanilla"},
	{"watermelon", "watercress"},
	{"ximenia", "xanthan"},
	{"yuzu", "yam"},
	{"zarzamora", "zucchini"},
}

// seed writes x rounds of the fruit/vegetable pairs, one batch per round,
// and persists the next seed index with the last round.
func (sh *shell) seed(x int) {
	start := time.Now()
	startIndex := sh.seedIndex
	count := 0

	shuffled := make([][2]string, len(kvPairs))
	copy(shuffled, kvPairs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for i := 0; i < x; i++ {
		var b db.Batch
		for _, pair := range shuffled {
			b.Put([]byte(fmt.Sprintf("%s%d", pair[0], sh.seedIndex)), []byte(fmt.Sprintf("%s%d", pair[1], sh.seedIndex)))
		}
		if i == x-1 {
			b.Put([]byte(seedIndexKey), []byte(strconv.Itoa(sh.seedIndex+1)))
		}
		if err := sh.engine.Write(&b); err != nil {
			sh.printf("seed error: %v\n", err)
			return
		}
		count += len(shuffled)
		sh.seedIndex++
	}

	avgPerEntry := time.Since(start) / time.Duration(count)
	common.LogDuration(start, "seeded %d entries (%d * %d, index %d-%d) - %v/entry",
		count, len(kvPairs), x, startIndex, sh.seedIndex-1, avgPerEntry)
	sh.printf("seeded %d entries\n", count)
}
