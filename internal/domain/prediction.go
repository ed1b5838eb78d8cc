package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Label - метка предсказания оракула. Оракул может прислать её строкой ("1", "Suspicious")
// или числом (1), поэтому храним в строковом виде.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*l = ""
	case string:
		*l = Label(strings.TrimSpace(t))
	case float64:
		*l = Label(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		if t {
			*l = "1"
		} else {
			*l = "0"
		}
	default:
		return fmt.Errorf("label: unsupported json type %T", v)
	}
	return nil
}

// OracleResult - структурированный ответ оракула. Debug заполняется только по запросу.
type OracleResult struct {
	Prediction Label    `json:"prediction"`
	Confidence float64  `json:"confidence"`
	KeyFactors []string `json:"key_factors"`
	Debug      string   `json:"debug,omitempty"`
}
