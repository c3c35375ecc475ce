package game

import (
	"testing"

	"github.com/bodgit/ckmame/file"
	"github.com/stretchr/testify/assert"
)

func TestClearSelfParent(t *testing.T) {
	g := &Game{Name: "foo"}
	g.ROM.ParentName = "foo"
	g.ROM.ClearSelfParent(g.Name)
	assert.Equal(t, "", g.ROM.ParentName)
}

func TestIsLost(t *testing.T) {
	v := RoleView{ParentName: "parent"}
	assert.True(t, v.IsLost())

	v.Files = []file.Descriptor{{Where: file.InZip}}
	assert.True(t, v.IsLost())

	v.Files = append(v.Files, file.Descriptor{Where: file.InParent})
	assert.False(t, v.IsLost())

	v.ParentName = ""
	assert.False(t, v.IsLost())
}

func TestView(t *testing.T) {
	g := &Game{}
	g.ROM.ParentName = "r"
	g.Sample.ParentName = "s"
	assert.Equal(t, "r", g.View(ROM).ParentName)
	assert.Equal(t, "s", g.View(Sample).ParentName)
}
