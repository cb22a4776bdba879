package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

const (
	collectionLog           = "payment_log"
	collectionNotifications = "payment_notifications"
	collectionCarts         = "carts"

	mongoTimeout = 10 * time.Second
)

type MongoDB struct {
	client   *mongo.Client
	database string
}

// cartDocument stores decimal prices as strings
type cartDocument struct {
	Token   string             `bson:"token"`
	Items   []cartItemDocument `bson:"items"`
	Updated time.Time          `bson:"updated"`
}

type cartItemDocument struct {
	ProductId int    `bson:"product_id"`
	Name      string `bson:"name"`
	Price     string `bson:"price"`
	Quantity  int    `bson:"quantity"`
	Image     string `bson:"image"`
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoDB{
		client:   client,
		database: conf.Mongo.Database,
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	_, err := m.collection(collectionLog).InsertOne(ctx, data)
	return err
}

func (m *MongoDB) GetNotification(ctx context.Context, gatewayPaymentId string) (*entity.NotificationRecord, error) {
	filter := bson.D{{Key: "pf_payment_id", Value: gatewayPaymentId}}
	var record entity.NotificationRecord
	err := m.collection(collectionNotifications).FindOne(ctx, filter).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *MongoDB) SaveNotification(ctx context.Context, record *entity.NotificationRecord) error {
	filter := bson.D{{Key: "pf_payment_id", Value: record.GatewayPaymentId}}
	set := bson.M{"$set": record}
	_, err := m.collection(collectionNotifications).UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

// MarkNotificationReconciled records the outcome of the order update.
// An empty reconcileError marks the notification as applied.
func (m *MongoDB) MarkNotificationReconciled(ctx context.Context, gatewayPaymentId string, reconcileError string) error {
	filter := bson.D{{Key: "pf_payment_id", Value: gatewayPaymentId}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "reconciled", Value: reconcileError == ""},
			{Key: "error", Value: reconcileError},
			{Key: "time_reconciled", Value: time.Now()},
		}},
	}
	_, err := m.collection(collectionNotifications).UpdateOne(ctx, filter, update)
	return err
}

func (m *MongoDB) GetCart(ctx context.Context, token string) (*entity.Cart, error) {
	filter := bson.D{{Key: "token", Value: token}}
	var document cartDocument
	err := m.collection(collectionCarts).FindOne(ctx, filter).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cart := &entity.Cart{
		Token:   document.Token,
		Updated: document.Updated,
		Items:   make([]entity.CartItem, 0, len(document.Items)),
	}
	for _, item := range document.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("cart %s: product %d price %q: %w", token, item.ProductId, item.Price, err)
		}
		cart.Items = append(cart.Items, entity.CartItem{
			ProductId: item.ProductId,
			Name:      item.Name,
			Price:     price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return cart, nil
}

func (m *MongoDB) SaveCart(ctx context.Context, cart *entity.Cart) error {
	document := cartDocument{
		Token:   cart.Token,
		Updated: cart.Updated,
		Items:   make([]cartItemDocument, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		document.Items = append(document.Items, cartItemDocument{
			ProductId: item.ProductId,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}

	filter := bson.D{{Key: "token", Value: cart.Token}}
	set := bson.M{"$set": document}
	_, err := m.collection(collectionCarts).UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) DeleteCart(ctx context.Context, token string) error {
	filter := bson.D{{Key: "token", Value: token}}
	_, err := m.collection(collectionCarts).DeleteOne(ctx, filter)
	return err
}
