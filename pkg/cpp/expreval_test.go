package cpp

import "testing"

func TestEvalExpr_Arithmetic(t *testing.T) {
	tests := []struct {
		expr   string
		expect int64
	}{
		{"42", 42},
		{"0x2A", 42},
		{"052", 42},
		{"-5", -5},
		{"+5", 5},
		{"!0", 1},
		{"!1", 0},
		{"~0", -1},
		{"2 + 3", 5},
		{"10 - 3", 7},
		{"3 * 4", 12},
		{"15 / 3", 5},
		{"17 % 5", 2},
		{"1 << 4", 16},
		{"16 >> 2", 4},
		{"5 < 10", 1},
		{"5 > 10", 0},
		{"5 <= 5", 1},
		{"5 >= 6", 0},
		{"5 == 5", 1},
		{"5 != 5", 0},
		{"0xFF & 0x0F", 15},
		{"0xF0 | 0x0F", 255},
		{"0xFF ^ 0x0F", 240},
		{"1 && 1", 1},
		{"1 && 0", 0},
		{"0 || 1", 1},
		{"0 || 0", 0},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 3", 3},
		{"(2 + 3) * 4", 20},
		{"'a'", 97},
		{"'\\n'", 10},
		{"'\\0'", 0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			result, err := evalExpr(tokenize(tt.expr))
			if err != nil {
				t.Fatalf("evalExpr error: %v", err)
			}
			if result != tt.expect {
				t.Errorf("evalExpr(%q) = %d, want %d", tt.expr, result, tt.expect)
			}
		})
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	tests := []string{"", "1 / 0", "1 % 0", "(1", "1 2"}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if _, err := evalExpr(tokenize(expr)); err == nil {
				t.Errorf("evalExpr(%q) expected error, got none", expr)
			}
		})
	}
}

func TestMatchCfgDef_DefinedOperator(t *testing.T) {
	ev := NewEvaluator()
	tests := []struct {
		name   string
		vars   map[string]string
		expr   string
		expect bool
	}{
		{"defined(X) true", map[string]string{"X": "1"}, "defined(X)", true},
		{"defined(X) false", nil, "defined(X)", false},
		{"defined X true", map[string]string{"X": "1"}, "defined X", true},
		{"defined X false", nil, "defined X", false},
		{"!defined(X)", nil, "!defined(X)", true},
		{"defined(X) && defined(Y)", map[string]string{"X": "1", "Y": "1"}, "defined(X) && defined(Y)", true},
		{"defined(X) || defined(Y)", map[string]string{"X": "1"}, "defined(X) || defined(Y)", true},
		{"undefined evaluates to 0", nil, "UNDEFINED", false},
		{"defined macro value", map[string]string{"X": "42"}, "X > 0", true},
		{"complex", map[string]string{"X": "5"}, "X >= 5 && X < 10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ev.MatchCfgDef(tt.expr, tt.vars)
			if err != nil {
				t.Fatalf("MatchCfgDef error: %v", err)
			}
			if result != tt.expect {
				t.Errorf("MatchCfgDef(%q) = %v, want %v", tt.expr, result, tt.expect)
			}
		})
	}
}
