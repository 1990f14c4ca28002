package coalescer

import (
	"encoding/json"

	"github.com/dida1024/sentrycore/internal/domain"
)

func encodeProposal(p domain.ActionProposal) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func decodeProposal(raw string) (domain.ActionProposal, error) {
	var p domain.ActionProposal
	err := json.Unmarshal([]byte(raw), &p)
	return p, err
}
