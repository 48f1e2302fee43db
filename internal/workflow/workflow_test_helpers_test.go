package workflow

import (
	"strings"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/zargar/internal/activity"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types can be deserialized
// correctly. In unit tests all activities are mocked via OnActivity.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.JobStore{})
	env.RegisterActivity(&activity.Backup{})
	env.RegisterActivity(&activity.Restore{})
	env.RegisterActivity(&activity.Cleanup{})
}

// matchMessage matches JobMessageParams for id whose message contains the
// error text. The exact message depends on Temporal's error wrapping.
func matchMessage(id, contains string) interface{} {
	return mock.MatchedBy(func(p activity.JobMessageParams) bool {
		return p.ID == id && len(p.Message) > 0 && strings.Contains(p.Message, contains)
	})
}
