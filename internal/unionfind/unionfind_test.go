package unionfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnion_MergesGroups(t *testing.T) {
	u := New(30)
	assert.True(t, u.Union("A", "B"))
	assert.True(t, u.Union("B", "C"))
	assert.Equal(t, u.Find("A"), u.Find("C"))
	assert.Equal(t, 3, u.Size("A"))
}

func TestUnion_RefusesMergeExceedingCap(t *testing.T) {
	u := New(2)
	assert.True(t, u.Union("A", "B"))
	assert.False(t, u.Union("A", "C")) // would make a 3-member group over the cap of 2
	assert.NotEqual(t, u.Find("A"), u.Find("C"))
}

func TestFind_SingletonForUnseenMember(t *testing.T) {
	u := New(30)
	assert.Equal(t, "X", u.Find("X"))
	assert.Equal(t, 1, u.Size("X"))
}

func TestGroups_PartitionsCorrectly(t *testing.T) {
	u := New(30)
	u.Union("A", "B")
	u.Union("C", "D")
	groups := u.Groups()
	assert.Len(t, groups, 2)
}
