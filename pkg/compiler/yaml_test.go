package compiler

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSourcesParsesNamespacedList(t *testing.T) {
	doc := []byte(`
sources:
  - namespace: default
    rules: |
      rule a {
        strings:
          $a = "x"
        condition:
          $a
      }
  - namespace: extra
    rules: |
      rule b {
        strings:
          $b = "y"
        condition:
          $b
      }
`)
	srcs, err := LoadSources(doc)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "default", srcs[0].Namespace)
	assert.Equal(t, "extra", srcs[1].Namespace)
}

func TestLoadSourcesEmptyIsError(t *testing.T) {
	_, err := LoadSources([]byte("sources: []"))
	assert.Error(t, err)
}

func TestLoadSourcesDirWalksYAMLFilesOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"rules/a.yml": &fstest.MapFile{Data: []byte(`
sources:
  - namespace: ns-a
    rules: |
      rule a { condition: true }
`)},
		"rules/b.yaml": &fstest.MapFile{Data: []byte(`
sources:
  - namespace: ns-b
    rules: |
      rule b { condition: true }
`)},
		"rules/readme.txt": &fstest.MapFile{Data: []byte("not yaml")},
	}
	srcs, err := LoadSourcesDir(fsys, "rules")
	require.NoError(t, err)
	require.Len(t, srcs, 2)
}

func TestCompileDirProducesCompiledRulesAcrossFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"rules/a.yml": &fstest.MapFile{Data: []byte(`
sources:
  - namespace: ns-a
    rules: |
      rule one {
        strings:
          $a = "x"
        condition:
          $a
      }
`)},
	}
	cr, err := CompileDir(fsys, "rules")
	require.NoError(t, err)
	require.Len(t, cr.Rules, 1)
	assert.Equal(t, "ns-a", cr.Rules[0].Namespace)
}
