package sandbox

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// evalCondition interprets the small subset of DynamoDB condition-expression
// grammar this module ever emits: attribute_exists/attribute_not_exists,
// begins_with/contains, comparisons against a literal value, BETWEEN, and
// AND/OR composition (storage/dsl.go's OneOf/AllOf, update.go's sanitized
// preconditions, client.go's "attribute_not_exists(PK)"/"attribute_exists(PK)").
// It is not a general expression evaluator; unsupported syntax is a bug in
// the caller, not a fake to extend.
func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	expr = unwrapParens(expr)

	if parts, ok := splitTopLevel(expr, " OR "); ok {
		for _, p := range parts {
			ok, err := evalCondition(p, item, names, values)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if parts, ok := splitTopLevel(expr, " AND "); ok {
		for _, p := range parts {
			ok, err := evalCondition(p, item, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	return evalAtom(expr, item, names, values)
}

// unwrapParens strips one layer of enclosing parens, repeatedly, as long as
// they genuinely wrap the whole expression (not just its first clause).
func unwrapParens(expr string) string {
	for strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		depth := 0
		matchesWhole := true
		for i, r := range expr {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 && i != len(expr)-1 {
					matchesWhole = false
				}
			}
		}
		if !matchesWhole {
			break
		}
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	return expr
}

// splitTopLevel splits expr on sep (case-insensitive) at paren-depth 0,
// skipping a BETWEEN's own "AND". Returns ok=false if sep never appears at
// depth 0 (so the caller falls through to the next precedence level).
func splitTopLevel(expr string, sep string) ([]string, bool) {
	upper := strings.ToUpper(expr)
	upperSep := strings.ToUpper(sep)
	depth := 0
	betweenPending := false
	var parts []string
	last := 0
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 {
			if strings.HasPrefix(upper[i:], "BETWEEN ") {
				betweenPending = true
			}
			if strings.HasPrefix(upper[i:], upperSep) {
				if upperSep == " AND " && betweenPending {
					betweenPending = false
				} else {
					parts = append(parts, strings.TrimSpace(expr[last:i]))
					i += len(sep)
					last = i
					continue
				}
			}
		}
		i++
	}
	if len(parts) == 0 {
		return nil, false
	}
	parts = append(parts, strings.TrimSpace(expr[last:]))
	return parts, true
}

var (
	reExists    = regexp.MustCompile(`^attribute_exists\s*\(\s*(.+?)\s*\)$`)
	reNotExists = regexp.MustCompile(`^attribute_not_exists\s*\(\s*(.+?)\s*\)$`)
	reBeginsW   = regexp.MustCompile(`^begins_with\s*\(\s*(.+?)\s*,\s*(.+?)\s*\)$`)
	reContains  = regexp.MustCompile(`^contains\s*\(\s*(.+?)\s*,\s*(.+?)\s*\)$`)
	reBetween   = regexp.MustCompile(`(?i)^(.+?)\s+BETWEEN\s+(\S+)\s+AND\s+(\S+)$`)
	reCompare   = regexp.MustCompile(`^(.+?)\s*(<>|<=|>=|=|<|>)\s*(\S+)$`)
)

func evalAtom(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)

	if m := reExists.FindStringSubmatch(expr); m != nil {
		_, ok := item[resolveName(m[1], names)]
		return ok, nil
	}
	if m := reNotExists.FindStringSubmatch(expr); m != nil {
		_, ok := item[resolveName(m[1], names)]
		return !ok, nil
	}
	if m := reBeginsW.FindStringSubmatch(expr); m != nil {
		v, ok := item[resolveName(m[1], names)]
		if !ok {
			return false, nil
		}
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		target := resolveValue(m[2], values)
		ts, ok := target.(*types.AttributeValueMemberS)
		return ok && strings.HasPrefix(s.Value, ts.Value), nil
	}
	if m := reContains.FindStringSubmatch(expr); m != nil {
		v, ok := item[resolveName(m[1], names)]
		if !ok {
			return false, nil
		}
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		target := resolveValue(m[2], values)
		ts, ok := target.(*types.AttributeValueMemberS)
		return ok && strings.Contains(s.Value, ts.Value), nil
	}
	if m := reBetween.FindStringSubmatch(expr); m != nil {
		v, ok := item[resolveName(m[1], names)]
		if !ok {
			return false, nil
		}
		lo := resolveValue(m[2], values)
		hi := resolveValue(m[3], values)
		cl, err := compareValues(v, lo)
		if err != nil {
			return false, err
		}
		ch, err := compareValues(v, hi)
		if err != nil {
			return false, err
		}
		return cl >= 0 && ch <= 0, nil
	}
	if m := reCompare.FindStringSubmatch(expr); m != nil {
		v, exists := item[resolveName(m[1], names)]
		target := resolveValue(m[3], values)
		switch m[2] {
		case "=":
			if !exists {
				return false, nil
			}
			c, err := compareValues(v, target)
			return err == nil && c == 0, err
		case "<>":
			if !exists {
				return true, nil
			}
			c, err := compareValues(v, target)
			return err == nil && c != 0, err
		default:
			if !exists {
				return false, nil
			}
			c, err := compareValues(v, target)
			if err != nil {
				return false, err
			}
			switch m[2] {
			case "<":
				return c < 0, nil
			case "<=":
				return c <= 0, nil
			case ">":
				return c > 0, nil
			case ">=":
				return c >= 0, nil
			}
		}
	}

	return false, nil
}

func resolveName(token string, names map[string]string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "#") {
		if n, ok := names[token]; ok {
			return n
		}
	}
	return token
}

func resolveValue(token string, values map[string]types.AttributeValue) types.AttributeValue {
	token = strings.TrimSpace(token)
	if v, ok := values[token]; ok {
		return v
	}
	return &types.AttributeValueMemberNULL{Value: true}
}

// compareValues orders two attribute values of the same DynamoDB scalar
// type; mismatched or unsupported types compare as never-equal/never-ordered.
func compareValues(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, errTypeMismatch
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, errTypeMismatch
		}
		af, aerr := strconv.ParseFloat(av.Value, 64)
		bf, berr := strconv.ParseFloat(bv.Value, 64)
		if aerr != nil || berr != nil {
			return 0, errTypeMismatch
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, errTypeMismatch
	}
}

var errTypeMismatch = &fakeAWSError{code: "ValidationException", msg: "comparison operands are of different types"}

// applyUpdateExpression applies the SET/REMOVE/ADD clauses this module ever
// emits (storage/update.go's sanitizedUpdateExpression, storage/dsl_update.go's
// compileUpdate) against item in place.
func applyUpdateExpression(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	expr = strings.TrimSpace(expr)
	clauses := splitClauses(expr)

	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(strings.ToUpper(clause), "SET "):
			applySet(item, clause[4:], names, values)
		case strings.HasPrefix(strings.ToUpper(clause), "REMOVE "):
			applyRemove(item, clause[7:], names)
		case strings.HasPrefix(strings.ToUpper(clause), "ADD "):
			applyAdd(item, clause[4:], names, values)
		}
	}
}

// splitClauses breaks "SET a = :a, b = :b REMOVE c" into ["SET a = :a, b =
// :b", "REMOVE c"] by scanning for the SET/REMOVE/ADD/DELETE keywords.
func splitClauses(expr string) []string {
	keywords := []string{"SET ", "REMOVE ", "ADD ", "DELETE "}
	var indices []int
	upper := strings.ToUpper(expr)
	for i := 0; i < len(expr); i++ {
		for _, kw := range keywords {
			if strings.HasPrefix(upper[i:], kw) && (i == 0 || expr[i-1] == ' ') {
				indices = append(indices, i)
			}
		}
	}
	if len(indices) == 0 {
		return nil
	}
	var out []string
	for i, idx := range indices {
		end := len(expr)
		if i+1 < len(indices) {
			end = indices[i+1]
		}
		out = append(out, strings.TrimSpace(expr[idx:end]))
	}
	return out
}

func applySet(item map[string]types.AttributeValue, body string, names map[string]string, values map[string]types.AttributeValue) {
	for _, assign := range splitTopLevelComma(body) {
		eq := strings.Index(assign, "=")
		if eq < 0 {
			continue
		}
		name := resolveName(strings.TrimSpace(assign[:eq]), names)
		rhs := strings.TrimSpace(assign[eq+1:])
		item[name] = evalSetRHS(item, name, rhs, names, values)
	}
}

// evalSetRHS resolves a SET right-hand side: a plain value reference, an
// if_not_exists(name, value) call, list_append(a, b), or name +/- value.
func evalSetRHS(item map[string]types.AttributeValue, targetName, rhs string, names map[string]string, values map[string]types.AttributeValue) types.AttributeValue {
	if m := regexp.MustCompile(`^if_not_exists\s*\(\s*(.+?)\s*,\s*(.+?)\s*\)$`).FindStringSubmatch(rhs); m != nil {
		if v, ok := item[resolveName(m[1], names)]; ok {
			return v
		}
		return resolveValue(m[2], values)
	}
	if m := regexp.MustCompile(`^list_append\s*\(\s*(.+?)\s*,\s*(.+?)\s*\)$`).FindStringSubmatch(rhs); m != nil {
		left := resolveListArg(item, m[1], names, values)
		right := resolveListArg(item, m[2], names, values)
		return &types.AttributeValueMemberL{Value: append(append([]types.AttributeValue{}, left...), right...)}
	}
	if m := regexp.MustCompile(`^(.+?)\s*\+\s*(\S+)$`).FindStringSubmatch(rhs); m != nil {
		base := numOf(item[resolveName(m[1], names)])
		delta := numOf(resolveValue(m[2], values))
		return numAttr(base + delta)
	}
	if m := regexp.MustCompile(`^(.+?)\s*-\s*(\S+)$`).FindStringSubmatch(rhs); m != nil {
		base := numOf(item[resolveName(m[1], names)])
		delta := numOf(resolveValue(m[2], values))
		return numAttr(base - delta)
	}
	return resolveValue(rhs, values)
}

func resolveListArg(item map[string]types.AttributeValue, token string, names map[string]string, values map[string]types.AttributeValue) []types.AttributeValue {
	token = strings.TrimSpace(token)
	var v types.AttributeValue
	if strings.HasPrefix(token, ":") {
		v = resolveValue(token, values)
	} else {
		v = item[resolveName(token, names)]
	}
	if l, ok := v.(*types.AttributeValueMemberL); ok {
		return l.Value
	}
	return nil
}

func numOf(v types.AttributeValue) float64 {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(n.Value, 64)
	return f
}

func numAttr(f float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func applyRemove(item map[string]types.AttributeValue, body string, names map[string]string) {
	for _, name := range splitTopLevelComma(body) {
		delete(item, resolveName(strings.TrimSpace(name), names))
	}
}

func applyAdd(item map[string]types.AttributeValue, body string, names map[string]string, values map[string]types.AttributeValue) {
	for _, assign := range splitTopLevelComma(body) {
		fields := strings.Fields(assign)
		if len(fields) != 2 {
			continue
		}
		name := resolveName(fields[0], names)
		delta := numOf(resolveValue(fields[1], values))
		item[name] = numAttr(numOf(item[name]) + delta)
	}
}

func splitTopLevelComma(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// parseKeyCondition extracts pk and an optional SK begins_with/prefix test
// from the small set of KeyConditionExpression shapes storage ever builds:
// "PK = :pk", "PK = :pk AND begins_with(SK, :sk)", "PK = :pk AND SK = :sk".
func parseKeyCondition(expr string, names map[string]string, values map[string]types.AttributeValue, pkAttr, skAttr string) (pk, skPrefix string, hasSK bool) {
	parts, ok := splitTopLevel(expr, " AND ")
	if !ok {
		parts = []string{expr}
	}

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if m := reCompare.FindStringSubmatch(p); m != nil {
			name := resolveName(m[1], names)
			val := resolveValue(m[3], values)
			s, _ := val.(*types.AttributeValueMemberS)
			if s == nil {
				continue
			}
			if name == pkAttr {
				pk = s.Value
			} else if name == skAttr {
				skPrefix, hasSK = s.Value, true
			}
			continue
		}
		if m := reBeginsW.FindStringSubmatch(p); m != nil {
			name := resolveName(m[1], names)
			val := resolveValue(m[2], values)
			s, _ := val.(*types.AttributeValueMemberS)
			if name == skAttr && s != nil {
				skPrefix, hasSK = s.Value, true
			}
		}
	}
	return pk, skPrefix, hasSK
}
