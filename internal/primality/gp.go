package primality

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"os/exec"
	"strings"
	"time"

	"github.com/primorial/fortunate/internal/errors"
)

// GPOracle delegates primality to a PARI/GP subprocess running
// ispseudoprime (Baillie-PSW). The rounds argument is ignored by gp; it is
// validated for parity with the in-process oracle.
type GPOracle struct {
	path    string
	timeout time.Duration
}

// NewGPOracle creates an oracle that runs the gp binary at path.
func NewGPOracle(path string, timeout time.Duration) *GPOracle {
	if path == "" {
		path = "gp"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &GPOracle{path: path, timeout: timeout}
}

// Available reports whether the gp binary can be found.
func (g *GPOracle) Available() bool {
	_, err := exec.LookPath(g.path)
	return err == nil
}

// IsProbablePrime implements Oracle.
func (g *GPOracle) IsProbablePrime(v *big.Int, rounds int) (bool, error) {
	if v == nil {
		return false, errors.NewOracleFailure("nil candidate", nil)
	}
	if rounds < 0 {
		return false, errors.NewOracleFailure("invalid round count", fmt.Errorf("rounds=%d", rounds))
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.path, "-q", "-f")
	cmd.Stdin = strings.NewReader(fmt.Sprintf("print(ispseudoprime(%s))\n", v.String()))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return false, errors.NewOracleFailure("gp subprocess failed", err).WithDetails(map[string]interface{}{
			"stderr": strings.TrimSpace(stderr.String()),
		})
	}

	switch out := strings.TrimSpace(stdout.String()); out {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, errors.NewOracleFailure("unexpected gp output", fmt.Errorf("%q", out))
	}
}
