package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"go.uber.org/zap"
)

// releaseTimeout bounds the delete that drops a lease.
const releaseTimeout = 2 * time.Second

// Lock takes a lease row in the locks table. A row whose expires_at has
// passed is treated as free, so a crashed holder blocks others for at most
// ttl.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	owner := uuid.NewString()
	for {
		now := s.nowFunc()
		item, err := attributevalue.MarshalMap(lockRecord{
			LockKey:   key,
			Owner:     owner,
			ExpiresAt: now.Add(ttl).UnixMilli(),
		})
		if err != nil {
			return func() {}, err
		}

		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:                 &s.tables.Locks,
			Item:                      item,
			ConditionExpression:       awsString(condLockFree),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": num(now.UnixMilli())},
		})
		if err == nil {
			return func() { s.unlock(ctx, key, owner) }, nil
		}
		if ctx.Err() != nil {
			return func() {}, fulfillment.ErrLocked
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) && !isTransient(err) {
			return func() {}, translate("acquire lock", err)
		}

		select {
		case <-ctx.Done():
			return func() {}, fulfillment.ErrLocked
		case <-time.After(s.lockRetry):
		}
	}
}

// unlock deletes the lease only while this owner still holds it. It runs
// detached from ctx so a cancelled request still frees the entity.
func (s *Store) unlock(ctx context.Context, key, owner string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(rctx, &dyn.DeleteItemInput{
		TableName:                 &s.tables.Locks,
		Key:                       map[string]types.AttributeValue{"lock_key": str(key)},
		ConditionExpression:       awsString(condLockOwner),
		ExpressionAttributeNames:  map[string]string{"#o": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":owner": str(owner)},
	})
	if err == nil {
		return
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		s.logger.Warn("lock lease expired before release", zap.String("lock_key", key))
		return
	}
	s.logger.Error("failed to release lock", zap.String("lock_key", key), zap.Error(err))
}
