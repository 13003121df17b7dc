package parallel

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// slowSquare sleeps longer for early items so results arrive out of order.
func slowSquare(v int) (int, error) {
	time.Sleep(time.Duration(20-v%20) * 100 * time.Microsecond)
	return v * v, nil
}

func TestRun_OrderPreservation(t *testing.T) {
	results := Run(Feed(seqs(200)), 8, slowSquare)

	var collected []int
	err := OrderedCollect(results, func(r Result[int, int]) error {
		require.NoError(t, r.Err)
		assert.Equal(t, r.Value*r.Value, r.Out)
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestRun_SingleWorker(t *testing.T) {
	results := Run(Feed(seqs(50)), 1, slowSquare)

	var collected []int
	err := OrderedCollect(results, func(r Result[int, int]) error {
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, seqs(50), collected)
}

func TestRun_EmptyInput(t *testing.T) {
	results := Run(Feed[int](nil), 4, slowSquare)

	count := 0
	err := OrderedCollect(results, func(r Result[int, int]) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOrderedCollect_EarlyError(t *testing.T) {
	results := Run(Feed(seqs(100)), 4, slowSquare)

	count := 0
	err := OrderedCollect(results, func(r Result[int, int]) error {
		count++
		if count == 5 {
			return fmt.Errorf("stop at 5")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 5, count)
}

func TestMap_ErrorsStayWithTheirItem(t *testing.T) {
	outs, errs := Map([]int{1, 2, 3, 4}, 3, func(v int) (string, error) {
		if v == 3 {
			return "", fmt.Errorf("odd one out")
		}
		return fmt.Sprint(v * 10), nil
	})
	assert.Equal(t, []string{"10", "20", "", "40"}, outs)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Error(t, errs[2])
	assert.NoError(t, errs[3])
}
