package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"portfolio-lab/internal/domain"
)

// ComputeMatrixKey computes a deterministic matrix key using SHA256
// over the normalized generation config. Identical configs always hash
// identically, which is what lets concurrent requests dedup onto one
// durable row. Returns hex-encoded hash (64 characters).
func ComputeMatrixKey(cfg domain.MatrixConfig) string {
	var b strings.Builder

	b.WriteString(cfg.FundID)
	b.WriteByte('|')
	b.WriteString(cfg.TaxonomyVersion)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(cfg.ScenarioCount))
	b.WriteByte('|')
	// Bucket definitions are order-significant; weights are fixed-format
	// so 0.5 and 0.50 normalize to the same key.
	b.WriteString(strings.Join(cfg.BucketDefinitions, ","))
	b.WriteByte('|')
	for i, w := range cfg.CorrelationWeights {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(w, 'g', 17, 64))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(cfg.RecyclingEnabled))
	b.WriteByte('|')
	b.WriteString(normalizeSimulation(cfg.Simulation))

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// normalizeSimulation flattens the simulation config into a canonical
// string. RandomSeed is intentionally excluded: the matrix content is a
// function of the model parameters, not of which seed a caller happened
// to pass.
func normalizeSimulation(c domain.SimulationConfig) string {
	m := c.Market
	return fmt.Sprintf("%s|%d|%d|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		string(c.Mode),
		c.NumTrials,
		c.NumCompanies,
		formatFloat(c.TimeHorizonYears),
		formatFloat(c.InitialCheckSize),
		formatFloat(m.ExitMultiplierMedian),
		formatFloat(m.ExitMultiplierP90),
		formatFloat(m.FailureRate),
		formatFloat(m.GraduationRate),
		formatFloat(m.FollowOnProbability),
		formatFloat(m.FollowOnFraction),
		formatFloat(m.HoldPeriodYears),
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}
