package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// validConfigYAML is a minimal valid configuration for testing.
const validConfigYAML = `
server:
  address: ":18080"
apis:
  - id: petstore
    contextPath: /store
    upstream: http://localhost:9999
    flowMode: BEST_MATCH
    flows:
      - name: pets
        path: /pets/:id
        methods: [get]
        pre:
          - policy: transform-headers
            configuration:
              set:
                x-flow: pets
`

// invalidConfigYAML parses but fails validation.
const invalidConfigYAML = `
apis:
  - id: ""
    contextPath: store
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
