package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendGetClear(t *testing.T) {
	h := NewManager(10)

	h.Append(1, models.UserTurn("hello", ""))
	h.Append(1, models.AssistantTurn("hi"))
	h.Append(2, models.UserTurn("foo", "https://img/1.jpg"))

	a := h.Get(1)
	require.Len(t, a, 2)
	assert.Equal(t, models.RoleUser, a[0].Role)
	assert.Equal(t, "hello", a[0].Text)
	assert.Equal(t, models.RoleAssistant, a[1].Role)

	b := h.Get(2)
	require.Len(t, b, 1)
	assert.True(t, b[0].HasImage())

	h.Clear(1)
	assert.Empty(t, h.Get(1))
	assert.Len(t, h.Get(2), 1)
}

// Eleven alternating turns with a limit of ten drop exactly the first one.
func TestAppendEvictsOldest(t *testing.T) {
	h := NewManager(10)

	var all []models.Turn
	for i := 1; i <= 11; i++ {
		turn := models.UserTurn(fmt.Sprintf("u%d", i), "")
		if i%2 == 0 {
			turn = models.AssistantTurn(fmt.Sprintf("a%d", i))
		}
		all = append(all, turn)
		h.Append(7, turn)
		assert.LessOrEqual(t, h.Len(7), 10)
	}

	assert.Equal(t, all[1:], h.Get(7))
}

func TestGetReturnsCopy(t *testing.T) {
	h := NewManager(3)
	h.Append(1, models.UserTurn("a", ""))

	got := h.Get(1)
	got[0].Text = "mutated"
	assert.Equal(t, "a", h.Get(1)[0].Text)
}

func TestDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NewManager(0).Limit())
}

func TestConcurrentAppend(t *testing.T) {
	h := NewManager(5)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(int64(i%3), models.UserTurn("x", ""))
		}(i)
	}
	wg.Wait()
	for id := int64(0); id < 3; id++ {
		assert.Equal(t, 5, h.Len(id))
	}
}
