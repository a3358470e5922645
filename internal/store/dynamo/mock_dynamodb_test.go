package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory DynamoDB good enough for the expressions this
// package issues: conditions made of attribute_(not_)exists, =, <, >= and IN
// joined with AND/OR, and updates made of SET and ADD clauses.
type mockDynamo struct {
	mu       sync.Mutex
	keys     map[string][]string
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int

	// failNext, when set, is returned (once) by the next call of any method.
	failNext error

	// loseTransactResponse, when set, applies the next transaction and then
	// returns this error as if the response was lost in transit.
	loseTransactResponse error
	// tokens holds the ClientRequestToken of every applied transaction.
	tokens map[string]bool

	transactCalls int
}

func newMockDynamo(tables Tables) *mockDynamo {
	return &mockDynamo{
		keys: map[string][]string{
			tables.Drafts:    {"store_id", "draft_id"},
			tables.Orders:    {"store_id", "order_id"},
			tables.Inventory: {"store_id", "variant_id"},
			tables.Bills:     {"store_id", "bill_id"},
			tables.Payments:  {"bill_id", "payment_id"},
			tables.Locks:     {"lock_key"},
		},
		tables: map[string]map[string]map[string]types.AttributeValue{},
		tokens: map[string]bool{},
	}
}

func (m *mockDynamo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func (m *mockDynamo) pk(table string, item map[string]types.AttributeValue) (string, error) {
	attrs, ok := m.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, ok := item[a].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("missing key attribute %s", a)
		}
		parts = append(parts, v.Value)
	}
	return strings.Join(parts, "|"), nil
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	k, err := m.pk(*in.TableName, in.Item)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*in.TableName)
	old := tbl[k]
	if in.ConditionExpression != nil && !evalCondition(*in.ConditionExpression, old, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	tbl[k] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	k, err := m.pk(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*in.TableName)[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	item, err := m.update(in.TableName, in.Key, in.UpdateExpression, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.ReturnValuesOnConditionCheckFailure)
	if err != nil {
		return nil, err
	}
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(item)
	}
	return out, nil
}

func (m *mockDynamo) update(table *string, key map[string]types.AttributeValue, updateExpr, condExpr *string, names map[string]string, values map[string]types.AttributeValue, onFail types.ReturnValuesOnConditionCheckFailure) (map[string]types.AttributeValue, error) {
	k, err := m.pk(*table, key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*table)
	old := tbl[k]
	if condExpr != nil && !evalCondition(*condExpr, old, names, values) {
		return nil, conditionFailed(old, onFail)
	}
	item := copyItem(old)
	if item == nil {
		item = copyItem(key)
	}
	if err := applyUpdate(*updateExpr, item, names, values); err != nil {
		return nil, err
	}
	tbl[k] = item
	return item, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	k, err := m.pk(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	tbl := m.table(*in.TableName)
	old := tbl[k]
	if in.ConditionExpression != nil && !evalCondition(*in.ConditionExpression, old, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	delete(tbl, k)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	attr, placeholder, ok := strings.Cut(*in.KeyConditionExpression, " = ")
	if !ok {
		return nil, fmt.Errorf("unsupported key condition %q", *in.KeyConditionExpression)
	}
	want := in.ExpressionAttributeValues[placeholder]

	tbl := m.table(*in.TableName)
	pks := make([]string, 0, len(tbl))
	for k := range tbl {
		pks = append(pks, k)
	}
	sort.Strings(pks)

	start := ""
	if in.ExclusiveStartKey != nil {
		s, err := m.pk(*in.TableName, in.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		start = s
	}

	out := &dyn.QueryOutput{}
	for _, k := range pks {
		if start != "" && k <= start {
			continue
		}
		item := tbl[k]
		if !equalAV(item[attr], want) {
			continue
		}
		if m.pageSize > 0 && len(out.Items) == m.pageSize {
			out.LastEvaluatedKey = keyOf(m.keys[*in.TableName], out.Items[len(out.Items)-1])
			return out, nil
		}
		if in.FilterExpression != nil && !evalCondition(*in.FilterExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
			continue
		}
		out.Items = append(out.Items, copyItem(item))
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if in.ClientRequestToken != nil && m.tokens[*in.ClientRequestToken] {
		return &dyn.TransactWriteItemsOutput{}, nil
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: awsString("None")}
		var (
			table  *string
			key    map[string]types.AttributeValue
			cond   *string
			names  map[string]string
			values map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, cond, names, values = it.Put.TableName, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
			key = it.Put.Item
		case it.Update != nil:
			table, cond, names, values = it.Update.TableName, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
			key = it.Update.Key
		default:
			return nil, errors.New("mock supports only Put and Update in transactions")
		}
		k, err := m.pk(*table, key)
		if err != nil {
			return nil, err
		}
		if cond != nil && !evalCondition(*cond, m.table(*table)[k], names, values) {
			reasons[i] = types.CancellationReason{Code: awsString("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             awsString("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range in.TransactItems {
		if p := it.Put; p != nil {
			k, _ := m.pk(*p.TableName, p.Item)
			m.table(*p.TableName)[k] = copyItem(p.Item)
			continue
		}
		u := it.Update
		if _, err := m.update(u.TableName, u.Key, u.UpdateExpression, nil, u.ExpressionAttributeNames, u.ExpressionAttributeValues, ""); err != nil {
			return nil, err
		}
	}
	if in.ClientRequestToken != nil {
		m.tokens[*in.ClientRequestToken] = true
	}
	if err := m.loseTransactResponse; err != nil {
		m.loseTransactResponse = nil
		return nil, err
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func conditionFailed(old map[string]types.AttributeValue, onFail types.ReturnValuesOnConditionCheckFailure) error {
	ccf := &types.ConditionalCheckFailedException{Message: awsString("The conditional request failed")}
	if onFail == types.ReturnValuesOnConditionCheckFailureAllOld {
		ccf.Item = copyItem(old)
	}
	return ccf
}

func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, alt := range strings.Split(expr, " OR ") {
		ok := true
		for _, clause := range strings.Split(alt, " AND ") {
			if !evalClause(strings.TrimSpace(clause), item, names, values) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func evalClause(clause string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	resolve := func(s string) string {
		s = strings.TrimSpace(s)
		if n, ok := names[s]; ok {
			return n
		}
		return s
	}
	if inner, ok := strings.CutPrefix(clause, "attribute_not_exists("); ok {
		_, exists := item[resolve(strings.TrimSuffix(inner, ")"))]
		return !exists
	}
	if inner, ok := strings.CutPrefix(clause, "attribute_exists("); ok {
		_, exists := item[resolve(strings.TrimSuffix(inner, ")"))]
		return exists
	}
	if lhs, list, ok := strings.Cut(clause, " IN ("); ok {
		got := item[resolve(lhs)]
		for _, ph := range strings.Split(strings.TrimSuffix(list, ")"), ",") {
			if equalAV(got, values[strings.TrimSpace(ph)]) {
				return true
			}
		}
		return false
	}
	for _, op := range []string{" >= ", " < ", " = "} {
		lhs, rhs, ok := strings.Cut(clause, op)
		if !ok {
			continue
		}
		got, want := item[resolve(lhs)], values[strings.TrimSpace(rhs)]
		if got == nil || want == nil {
			return false
		}
		if op == " = " {
			return equalAV(got, want)
		}
		g, gok := numberOf(got)
		w, wok := numberOf(want)
		if !gok || !wok {
			return false
		}
		if op == " >= " {
			return g >= w
		}
		return g < w
	}
	panic("mockDynamo: unsupported condition clause " + clause)
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	rest := strings.TrimSpace(expr)
	for rest != "" {
		keyword, body, _ := strings.Cut(rest, " ")
		next := len(body)
		for _, kw := range []string{" SET ", " ADD "} {
			if i := strings.Index(body, kw); i >= 0 && i < next {
				next = i
			}
		}
		section := body[:next]
		rest = strings.TrimSpace(body[next:])

		for _, action := range strings.Split(section, ",") {
			action = strings.TrimSpace(action)
			switch keyword {
			case "SET":
				lhs, rhs, ok := strings.Cut(action, " = ")
				if !ok {
					return fmt.Errorf("bad SET action %q", action)
				}
				name := strings.TrimSpace(lhs)
				if n, ok := names[name]; ok {
					name = n
				}
				item[name] = values[strings.TrimSpace(rhs)]
			case "ADD":
				name, ph, ok := strings.Cut(action, " ")
				if !ok {
					return fmt.Errorf("bad ADD action %q", action)
				}
				cur, _ := numberOf(item[name])
				delta, _ := numberOf(values[strings.TrimSpace(ph)])
				item[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
			default:
				return fmt.Errorf("unsupported update keyword %q", keyword)
			}
		}
	}
	return nil
}

func numberOf(av types.AttributeValue) (int64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	return v, err == nil
}

func equalAV(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	}
	return false
}

func keyOf(attrs []string, item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(attrs))
	for _, a := range attrs {
		out[a] = item[a]
	}
	return out
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
