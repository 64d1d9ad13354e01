package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDashboardCacheKeys(t *testing.T) {
	assert.Equal(t, "dash:admin", AdminDashboardKey())
	assert.Equal(t, "dash:teacher:usr-1", TeacherDashboardKey("usr-1"))
	assert.Equal(t, "dash:parent:usr-2", ParentDashboardKey("usr-2"))
	assert.Equal(t, "dash:*", DashboardKeyPattern())
}
