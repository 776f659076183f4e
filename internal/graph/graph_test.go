package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towpath-run/towpath/internal/config"
)

func step(name, module string, depends interface{}) config.StepSpec {
	return config.StepSpec{Name: name, Module: module, Options: map[string]interface{}{}, DependsRaw: depends}
}

func TestBuildLinearChainOrder(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("align", "bwa", []interface{}{"trim"}),
		step("trim", "cutadapt", nil),
		step("sort", "samtools", []interface{}{"align"}),
	}}
	g, err := Build(doc)
	require.NoError(t, err)
	var names []string
	for _, s := range g.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"trim", "align", "sort"}, names)
}

func TestBuildNatsortTieBreak(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("run10", "m", nil),
		step("run2", "m", nil),
		step("run1", "m", nil),
	}}
	g, err := Build(doc)
	require.NoError(t, err)
	var names []string
	for _, s := range g.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"run1", "run2", "run10"}, names)
}

func TestBuildDetectsCycle(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("a", "m", []interface{}{"b"}),
		step("b", "m", []interface{}{"a"}),
	}}
	_, err := Build(doc)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("a", "m", []interface{}{"ghost"}),
	}}
	_, err := Build(doc)
	assert.ErrorContains(t, err, "unknown step")
}

func TestBuildRejectsDuplicateStepName(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("a", "m", nil),
		step("a", "m", nil),
	}}
	_, err := Build(doc)
	assert.ErrorContains(t, err, "duplicate step name")
}

func TestBuildRequiresExplicitDepends(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("a", "m", config.DependsRawNotPresent()),
	}}
	_, err := Build(doc)
	assert.ErrorContains(t, err, "must declare _depends")
}

func TestDependentsTracksReverseEdges(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("trim", "cutadapt", nil),
		step("align", "bwa", []interface{}{"trim"}),
	}}
	g, err := Build(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"align"}, g.Dependents("trim"))
	_, ok := g.ByName("align")
	assert.True(t, ok)
}

func TestDependencyPathCarriesTheFullAncestorChain(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("trim", "cutadapt", nil),
		step("align", "bwa", []interface{}{"trim"}),
		step("sort", "samtools", []interface{}{"align"}),
	}}
	g, err := Build(doc)
	require.NoError(t, err)

	trim, _ := g.ByName("trim")
	align, _ := g.ByName("align")
	sort, _ := g.ByName("sort")

	require.Len(t, trim.DependencyPath, 1)
	assert.Equal(t, trim.DependencyPath[0], trim.Module+"-"+trim.OptionsHash)

	require.Len(t, align.DependencyPath, 2)
	assert.Equal(t, trim.DependencyPath[0], align.DependencyPath[0])
	assert.Equal(t, align.Module+"-"+align.OptionsHash, align.DependencyPath[1])

	require.Len(t, sort.DependencyPath, 3)
	assert.Equal(t, align.DependencyPath, sort.DependencyPath[:2])
}

func TestDependencyPathFollowsNatsortLeastParentOnFanIn(t *testing.T) {
	doc := &config.Document{Steps: []config.StepSpec{
		step("runB", "source", nil),
		step("runA", "source", nil),
		step("merge", "combine", []interface{}{"runB", "runA"}),
	}}
	g, err := Build(doc)
	require.NoError(t, err)

	runA, _ := g.ByName("runA")
	merge, _ := g.ByName("merge")

	require.Len(t, merge.DependencyPath, 2)
	assert.Equal(t, runA.DependencyPath[0], merge.DependencyPath[0],
		"fan-in steps follow the natural-order-least parent for output-directory lineage")
}
