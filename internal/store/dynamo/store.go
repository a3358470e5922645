// Package dynamo implements fulfillment.Store on DynamoDB. Every table is
// keyed by store_id first (except payments and locks), so tenancy is part of
// the primary key and cross-store reads are impossible.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/aws"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"go.uber.org/zap"
)

// Condition expressions. The test mock evaluates these by name.
const (
	condDraftNew     = "attribute_not_exists(draft_id)"
	condOrderNew     = "attribute_not_exists(order_id)"
	condBillNew      = "attribute_not_exists(bill_id)"
	condPaymentNew   = "attribute_not_exists(payment_id)"
	condStatusIs     = "#s = :expected"
	condStatusClosed = "#s IN (:closed, :cancelled)"
	condLockFree     = "attribute_not_exists(lock_key) OR expires_at < :now"
	condLockOwner    = "#o = :owner"
)

// Tables names the DynamoDB tables backing the store.
type Tables struct {
	Drafts    string
	Orders    string
	Inventory string
	Bills     string
	Payments  string
	Locks     string
}

// Store encapsulates fulfillment persistence on DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tables    Tables
	logger    *zap.Logger
	nowFunc   func() time.Time
	lockRetry time.Duration
}

var _ fulfillment.Store = (*Store)(nil)

// NewStore returns a configured Store.
func NewStore(client aws.DynamoDBAPI, tables Tables, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		tables:    tables,
		logger:    logger,
		nowFunc:   time.Now,
		lockRetry: 50 * time.Millisecond,
	}
}

func (s *Store) CreateDraft(ctx context.Context, d fulfillment.Draft) error {
	item, err := attributevalue.MarshalMap(fromDraft(d))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Drafts,
		Item:                item,
		ConditionExpression: awsString(condDraftNew),
	})
	if err != nil {
		return translate("put draft", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, storeID, draftID string) (*fulfillment.Draft, error) {
	var rec draftRecord
	if err := s.get(ctx, s.tables.Drafts, draftKey(storeID, draftID), &rec); err != nil {
		return nil, err
	}
	return rec.toDraft()
}

// PutDraft replaces the draft while its stored status equals expected. A
// failed condition is reported as ErrNotFound when the row is absent.
func (s *Store) PutDraft(ctx context.Context, d fulfillment.Draft, expected fulfillment.DraftStatus) error {
	item, err := attributevalue.MarshalMap(fromDraft(d))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                           &s.tables.Drafts,
		Item:                                item,
		ConditionExpression:                 awsString(condStatusIs),
		ExpressionAttributeNames:            map[string]string{"#s": "status"},
		ExpressionAttributeValues:           map[string]types.AttributeValue{":expected": str(string(expected))},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return translateWithOld("put draft", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, storeID, orderID string) (*fulfillment.Order, error) {
	var rec orderRecord
	if err := s.get(ctx, s.tables.Orders, orderKey(storeID, orderID), &rec); err != nil {
		return nil, err
	}
	return rec.toOrder()
}

// ListOrders queries the store partition, filtering on status server side.
func (s *Store) ListOrders(ctx context.Context, storeID string, status fulfillment.OrderStatus) ([]fulfillment.Order, error) {
	input := &dyn.QueryInput{
		TableName:                 &s.tables.Orders,
		KeyConditionExpression:    awsString("store_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":sid": str(storeID)},
	}
	if status != fulfillment.OrderStatusAny {
		input.FilterExpression = awsString("#s = :status")
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
		input.ExpressionAttributeValues[":status"] = str(string(status))
	}

	var recs []orderRecord
	if err := s.query(ctx, input, &recs); err != nil {
		return nil, err
	}
	out := make([]fulfillment.Order, 0, len(recs))
	for _, r := range recs {
		o, err := r.toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	slices.SortFunc(out, func(a, b fulfillment.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// UpdateOrderStatus conditionally moves the order from -> to.
func (s *Store) UpdateOrderStatus(ctx context.Context, storeID, orderID string, from, to fulfillment.OrderStatus) error {
	_, err := s.client.UpdateItem(ctx, s.orderStatusUpdate(storeID, orderID, from, to))
	if err != nil {
		return translateWithOld("update order status", err)
	}
	return nil
}

func (s *Store) orderStatusUpdate(storeID, orderID string, from, to fulfillment.OrderStatus) *dyn.UpdateItemInput {
	return &dyn.UpdateItemInput{
		TableName:                &s.tables.Orders,
		Key:                      orderKey(storeID, orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString(condStatusIs),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      str(string(to)),
			":expected": str(string(from)),
			":ua":       str(s.nowFunc().UTC().Format(time.RFC3339Nano)),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
}

func (s *Store) DeleteOrder(ctx context.Context, storeID, orderID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                &s.tables.Orders,
		Key:                      orderKey(storeID, orderID),
		ConditionExpression:      awsString(condStatusClosed),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":closed":    str(string(fulfillment.OrderClosed)),
			":cancelled": str(string(fulfillment.OrderCancelled)),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return translateWithOld("delete order", err)
	}
	return nil
}

// CommitConversion writes the converted draft, the order and its bill in one
// TransactWriteItems call.
func (s *Store) CommitConversion(ctx context.Context, d fulfillment.Draft, o fulfillment.Order, b fulfillment.Bill) error {
	draftItem, err := attributevalue.MarshalMap(fromDraft(d))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	orderItem, err := attributevalue.MarshalMap(fromOrder(o))
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	billItem, err := attributevalue.MarshalMap(fromBill(b))
	if err != nil {
		return fmt.Errorf("marshal bill: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:                 &s.tables.Drafts,
				Item:                      draftItem,
				ConditionExpression:       awsString(condStatusIs),
				ExpressionAttributeNames:  map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{":expected": str(string(fulfillment.DraftOpen))},
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tables.Orders,
				Item:                orderItem,
				ConditionExpression: awsString(condOrderNew),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tables.Bills,
				Item:                billItem,
				ConditionExpression: awsString(condBillNew),
			},
		},
	}

	// the order id doubles as the request token, so re-issuing the same
	// conversion after an unknown outcome is applied at most once
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems:      transactItems,
		ClientRequestToken: awsString(o.ID),
	})
	if err != nil {
		return translateTransaction("commit conversion", err, func(int) error { return fulfillment.ErrConflict })
	}
	return nil
}

// CommitCancellation cancels the order and applies every release delta in
// one TransactWriteItems call. A failed order condition is ErrConflict; a
// failed inventory floor is ErrFloor.
func (s *Store) CommitCancellation(ctx context.Context, o fulfillment.Order, releases []fulfillment.InventoryDelta) error {
	update := s.orderStatusUpdate(o.StoreID, o.ID, fulfillment.OrderOpen, fulfillment.OrderCancelled)
	transactItems := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:                 update.TableName,
				Key:                       update.Key,
				UpdateExpression:          update.UpdateExpression,
				ConditionExpression:       update.ConditionExpression,
				ExpressionAttributeNames:  update.ExpressionAttributeNames,
				ExpressionAttributeValues: update.ExpressionAttributeValues,
			},
		},
	}
	for _, delta := range releases {
		in := s.inventoryUpdate(o.StoreID, delta, true)
		transactItems = append(transactItems, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 in.TableName,
				Key:                       in.Key,
				UpdateExpression:          in.UpdateExpression,
				ConditionExpression:       in.ConditionExpression,
				ExpressionAttributeNames:  in.ExpressionAttributeNames,
				ExpressionAttributeValues: in.ExpressionAttributeValues,
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		return translateTransaction("commit cancellation", err, func(i int) error {
			if i == 0 {
				return fulfillment.ErrConflict
			}
			return fulfillment.ErrFloor
		})
	}
	return nil
}

func (s *Store) GetInventory(ctx context.Context, storeID, variantID string) (*fulfillment.InventoryRecord, error) {
	var rec inventoryRecord
	if err := s.get(ctx, s.tables.Inventory, inventoryKey(storeID, variantID), &rec); err != nil {
		return nil, err
	}
	return rec.toInventory(), nil
}

// AdjustInventory applies delta with ADD. Each negative component adds a
// floor condition, so the row is never written below zero.
func (s *Store) AdjustInventory(ctx context.Context, storeID string, delta fulfillment.InventoryDelta) (*fulfillment.InventoryRecord, error) {
	in := s.inventoryUpdate(storeID, delta, false)
	in.ReturnValues = types.ReturnValueAllNew
	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("adjust inventory %s: %w", delta.VariantID, fulfillment.ErrFloor)
		}
		return nil, translate("adjust inventory", err)
	}
	var rec inventoryRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal inventory: %w", err)
	}
	return rec.toInventory(), nil
}

// inventoryUpdate builds the ADD update for delta. With mustExist the row is
// not created when absent.
func (s *Store) inventoryUpdate(storeID string, delta fulfillment.InventoryDelta, mustExist bool) *dyn.UpdateItemInput {
	values := map[string]types.AttributeValue{
		":da": num(delta.Available),
		":dc": num(delta.Committed),
		":db": num(delta.Backordered),
		":ua": str(s.nowFunc().UTC().Format(time.RFC3339Nano)),
	}
	var conds []string
	if mustExist {
		conds = append(conds, "attribute_exists(variant_id)")
	}
	for _, f := range []struct {
		attr  string
		delta int64
	}{
		{"available", delta.Available},
		{"committed", delta.Committed},
		{"backordered", delta.Backordered},
	} {
		if f.delta < 0 {
			placeholder := ":min_" + f.attr
			conds = append(conds, f.attr+" >= "+placeholder)
			values[placeholder] = num(-f.delta)
		}
	}

	in := &dyn.UpdateItemInput{
		TableName:                 &s.tables.Inventory,
		Key:                       inventoryKey(storeID, delta.VariantID),
		UpdateExpression:          awsString("ADD available :da, committed :dc, backordered :db SET updated_at = :ua"),
		ExpressionAttributeValues: values,
	}
	if len(conds) > 0 {
		in.ConditionExpression = awsString(strings.Join(conds, " AND "))
	}
	return in
}

func (s *Store) CreateBill(ctx context.Context, b fulfillment.Bill) error {
	item, err := attributevalue.MarshalMap(fromBill(b))
	if err != nil {
		return fmt.Errorf("marshal bill: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Bills,
		Item:                item,
		ConditionExpression: awsString(condBillNew),
	})
	if err != nil {
		return translate("put bill", err)
	}
	return nil
}

func (s *Store) GetBill(ctx context.Context, storeID, billID string) (*fulfillment.Bill, error) {
	var rec billRecord
	if err := s.get(ctx, s.tables.Bills, billKey(storeID, billID), &rec); err != nil {
		return nil, err
	}
	return rec.toBill()
}

func (s *Store) ListBills(ctx context.Context, storeID string) ([]fulfillment.Bill, error) {
	var recs []billRecord
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Bills,
		KeyConditionExpression:    awsString("store_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":sid": str(storeID)},
	}, &recs)
	if err != nil {
		return nil, err
	}
	out := make([]fulfillment.Bill, 0, len(recs))
	for _, r := range recs {
		b, err := r.toBill()
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b fulfillment.Bill) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) AppendPayment(ctx context.Context, p fulfillment.Payment) error {
	item, err := attributevalue.MarshalMap(fromPayment(p))
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Payments,
		Item:                item,
		ConditionExpression: awsString(condPaymentNew),
	})
	if err != nil {
		return translate("put payment", err)
	}
	return nil
}

// ListPayments returns a bill's payments ordered by creation time.
func (s *Store) ListPayments(ctx context.Context, billID string) ([]fulfillment.Payment, error) {
	var recs []paymentRecord
	err := s.query(ctx, &dyn.QueryInput{
		TableName:                 &s.tables.Payments,
		KeyConditionExpression:    awsString("bill_id = :bid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":bid": str(billID)},
	}, &recs)
	if err != nil {
		return nil, err
	}
	out := make([]fulfillment.Payment, 0, len(recs))
	for _, r := range recs {
		p, err := r.toPayment()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b fulfillment.Payment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// get loads one item into out, returning ErrNotFound when absent.
func (s *Store) get(ctx context.Context, table string, key map[string]types.AttributeValue, out any) error {
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &table,
		Key:            key,
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return translate("get item", err)
	}
	if len(res.Item) == 0 {
		return fulfillment.ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal %s item: %w", table, err)
	}
	return nil
}

// query follows LastEvaluatedKey until the partition is exhausted.
func (s *Store) query(ctx context.Context, input *dyn.QueryInput, out any) error {
	input.ConsistentRead = awsBool(true)
	var items []map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, input)
		if err != nil {
			return translate("query "+*input.TableName, err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal %s items: %w", *input.TableName, err)
	}
	return nil
}

// translate maps DynamoDB failures onto the fulfillment store sentinels.
func translate(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s: %w", op, fulfillment.ErrConflict)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, fulfillment.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// translateWithOld is used by writes that request ALL_OLD on a failed
// condition: no old item means the row does not exist.
func translateWithOld(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) && len(ccf.Item) == 0 {
		return fmt.Errorf("%s: %w", op, fulfillment.ErrNotFound)
	}
	return translate(op, err)
}

// translateTransaction maps a cancelled transaction onto the sentinel of the
// first item whose condition failed.
func translateTransaction(op string, err error, conditionErr func(index int) error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return translate(op, err)
	}
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil {
			continue
		}
		switch *reason.Code {
		case "ConditionalCheckFailed":
			return fmt.Errorf("%s: %w", op, conditionErr(i))
		case "TransactionConflict", "ThrottlingError", "ProvisionedThroughputExceeded":
			return fmt.Errorf("%s: %w: %w", op, fulfillment.ErrUnavailable, err)
		}
	}
	if len(tce.CancellationReasons) == 0 {
		return fmt.Errorf("%s: %w", op, conditionErr(0))
	}
	return fmt.Errorf("%s: %w: %w", op, fulfillment.ErrUnavailable, err)
}

func isTransient(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"TransactionConflictException",
		"TransactionInProgressException",
		"InternalServerError",
		"ServiceUnavailable":
		return true
	}
	return false
}

func draftKey(storeID, draftID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"store_id": str(storeID), "draft_id": str(draftID)}
}

func orderKey(storeID, orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"store_id": str(storeID), "order_id": str(orderID)}
}

func inventoryKey(storeID, variantID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"store_id": str(storeID), "variant_id": str(variantID)}
}

func billKey(storeID, billID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"store_id": str(storeID), "bill_id": str(billID)}
}

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func num(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
