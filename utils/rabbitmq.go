package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var RabbitMQConn *amqp.Connection
var RabbitMQChannel *amqp.Channel

// 市场事件交换机与路由键
const (
	MarketExchange = "market_events"

	RouteListingCreated  = "listing.created"
	RouteSaleCompleted   = "listing.sold"
	RouteBidPlaced       = "bid.placed"
	RouteAuctionEnded    = "auction.ended"
	RouteAuctionFinalize = "auction.finalize"

	finalizeQueue = "market_finalize_queue"
)

// InitRabbitMQ 初始化RabbitMQ
func InitRabbitMQ(url string) error {
	// 建立连接
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	RabbitMQConn = conn

	// 建立通道
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	RabbitMQChannel = ch

	// 声明交换机和队列
	return declareExchangeAndQueue()
}

// 声明交换机和结算队列
func declareExchangeAndQueue() error {
	// 声明交换机
	err := RabbitMQChannel.ExchangeDeclare(
		MarketExchange, // 交换机名
		"direct",       // 类型
		true,           // 持久化
		false,          // 自动删除
		false,          // 内部
		false,          // 等待
		nil,            // 参数
	)
	if err != nil {
		return err
	}

	// 声明拍卖结算队列
	_, err = RabbitMQChannel.QueueDeclare(
		finalizeQueue, // 队列名
		true,          // 持久化
		false,         // 自动删除
		false,         // 排他
		false,         // 等待
		nil,           // 参数
	)
	if err != nil {
		return err
	}

	// 绑定结算路由键到队列
	return RabbitMQChannel.QueueBind(
		finalizeQueue,
		RouteAuctionFinalize,
		MarketExchange,
		false,
		nil,
	)
}

// PublishMarketEvent 发布市场事件（fire-and-forget）
// 事件投递失败只记录日志，不影响调用方
func PublishMarketEvent(ctx context.Context, routingKey string, payload map[string]interface{}) error {
	msg, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return RabbitMQChannel.Publish(
		MarketExchange, // 交换机名
		routingKey,     // 路由键
		false,          // 强制
		false,          // 立即
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent, // 持久化
			Timestamp:    time.Now(),
		},
	)
}

// ConsumeFinalizeMsg 消费拍卖结算消息
// handler处理失败时消息重新入队，至少一次投递
func ConsumeFinalizeMsg(handler func(seller, certID string) error) error {
	msgs, err := RabbitMQChannel.Consume(
		finalizeQueue, // 队列名
		"",            // 消费者标签
		false,         // 自动确认
		false,         // 排他
		false,         // 不本地
		false,         // 等待
		nil,           // 参数
	)
	if err != nil {
		return err
	}

	// 启动协程消费消息
	go func() {
		for d := range msgs {
			var msg map[string]string
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				Logger.Error("消息反序列化失败", zap.Error(err))
				d.Nack(false, false) // 拒绝消息，不重新入队
				continue
			}

			seller, certID := msg["seller"], msg["cert_id"]
			if seller == "" || certID == "" {
				Logger.Error("结算消息缺少seller或cert_id")
				d.Nack(false, false)
				continue
			}

			if err := handler(seller, certID); err != nil {
				Logger.Error("处理拍卖结算消息失败", zap.String("cert_id", certID), zap.Error(err))
				d.Nack(false, true) // 拒绝消息，重新入队
			} else {
				d.Ack(false)
			}
		}
	}()

	return nil
}

// CloseRabbitMQ 关闭RabbitMQ连接
func CloseRabbitMQ() {
	if RabbitMQChannel != nil {
		RabbitMQChannel.Close()
	}
	if RabbitMQConn != nil {
		RabbitMQConn.Close()
	}
}
