package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBaseQueryNoFilter(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", Filter{})
	assert.Equal(t, "SELECT COUNT(1) FROM audit_events WHERE 1=1", query)
	assert.Empty(t, args)
}

func TestBuildBaseQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildBaseQuery("SELECT id", Filter{EntityType: "settlement", EntityID: "s1", ActorUser: "u1"})
	assert.Equal(t, "SELECT id FROM audit_events WHERE 1=1 AND entity_type = $1 AND entity_id = $2 AND actor_user_id = $3", query)
	assert.Equal(t, []any{"settlement", "s1", "u1"}, args)
}
