package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/compound"
	"github.com/turtacn/FoodSafety-MS-KB/internal/domain/detection"
)

func rec(name, cas string) detection.Record {
	r := detection.Record{detection.FieldMethodID: "GB-001"}
	if name != "" {
		r[detection.FieldCompoundName] = name
	}
	if cas != "" {
		r[detection.FieldCASNumber] = cas
	}
	return r
}

func catalog(t *testing.T) []*compound.Record {
	t.Helper()
	v, err := compound.NewVerified("50-00-0", []string{"Formaldehyde", "Methanal"})
	require.NoError(t, err)
	o, err := compound.NewOrphan("Mystery compound", "")
	require.NoError(t, err)
	return []*compound.Record{v, o}
}

func TestPropagator_FillsMissingCASFromAnyNameVariant(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	out, stats := p.Apply(detection.Corpus{rec("methanal", "")})

	assert.Equal(t, "50-00-0", out[0].CAS())
	assert.Equal(t, 1, stats.CASFilled)
}

func TestPropagator_FillsMissingNameWithPreferred(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	out, stats := p.Apply(detection.Corpus{rec("", "50-00-0")})

	assert.Equal(t, "Methanal", out[0].CompoundName())
	assert.Equal(t, 1, stats.NamesFilled)
}

func TestPropagator_NeverOverwrites(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	out, stats := p.Apply(detection.Corpus{rec("Formaldehyde", "99-99-9")})

	assert.Equal(t, "99-99-9", out[0].CAS())
	assert.Equal(t, 0, stats.CASFilled)
	assert.Equal(t, 1, stats.Untouched)
}

func TestPropagator_OrphanEntriesContributeNothing(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	out, stats := p.Apply(detection.Corpus{rec("Mystery compound", "")})

	assert.Equal(t, "", out[0].CAS())
	assert.Equal(t, 1, stats.OrphanReferences)
}

func TestPropagator_UnknownCASCountedAsOrphanReference(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	out, stats := p.Apply(detection.Corpus{rec("", "7732-18-5")})

	assert.Equal(t, "", out[0].CompoundName())
	assert.Equal(t, 1, stats.OrphanReferences)
}

func TestPropagator_Idempotent(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	corpus := detection.Corpus{
		rec("methanal", ""),
		rec("", "50-00-0"),
		rec("Unknown thing", ""),
	}

	first, firstStats := p.Apply(corpus)
	second, secondStats := p.Apply(first)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, firstStats.CASFilled)
	assert.Equal(t, 0, secondStats.CASFilled)
	assert.Equal(t, 0, secondStats.NamesFilled)
}

func TestPropagator_MeasurementFieldsUntouched(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	in := rec("methanal", "")
	in["retention_time"] = 3.14
	in["ions"] = []interface{}{"m/z 29", "m/z 30"}

	out, _ := p.Apply(detection.Corpus{in})
	assert.Equal(t, 3.14, out[0]["retention_time"])
	assert.Equal(t, []interface{}{"m/z 29", "m/z 30"}, out[0]["ions"])
	assert.Equal(t, "GB-001", out[0][detection.FieldMethodID])
}

func TestPropagator_InputNotMutated(t *testing.T) {
	p := NewPropagator(catalog(t), nil)
	corpus := detection.Corpus{rec("methanal", "")}
	_, _ = p.Apply(corpus)
	assert.Equal(t, "", corpus[0].CAS())
}
