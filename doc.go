/*
Package mdrouterは、複数のプロバイダーチャネルを束ねてひとつのコンシューマーセッションとして扱うリクエストルーターです。

アプリケーションはセッションに対してアイテムを登録するだけで、どのチャネルのどのサービスがリクエストを処理するかを意識する必要はありません。
セッションは各チャネルのログインとソースディレクトリを集約し、サービス名ごとに安定したサービスIDを割り当てます。
チャネルやサービスが使用できなくなった場合、アイテムは別のサービスへ自動的に再送されます。

パッケージ構成は以下のとおりです。

  - session: セッション本体です。ログインの集約、ディレクトリの統合、アイテムのルーティングとリカバリーを行います。
  - message: セッションとプロバイダー間でやり取りするメッセージです。
  - wire: プロバイダーとの接続を抽象化したトランスポートです。
  - errors: セッションが返却するエラーです。
  - log: ロガーインターフェースと実装です。

# Connect

	package main

	import (
		"context"
		"log"

		"github.com/aptpod/mdrouter-go/message"
		"github.com/aptpod/mdrouter-go/session"
	)

	func main() {
		ctx := context.Background()
		s, err := session.Connect(ctx, newDialer(), []session.ChannelGroupConfig{{
			Name: "group",
			Channels: []session.ChannelConfig{
				{Name: "A", Address: "10.0.0.1:14002"},
				{Name: "B", Address: "10.0.0.2:14002"},
			},
		}},
			session.WithLoginRequest(message.NewLoginRequest("user")),
			session.WithServiceGroups(session.ServiceGroupConfig{
				Name:     "SVG1",
				Services: []string{"DIRECT_FEED", "DIRECT_FEED_BACKUP"},
			}),
		)
		if err != nil {
			log.Fatal(err)
		}
		defer s.Close(ctx)

		_, err = s.Register(ctx, &message.RequestMsg{
			Header:          message.Header{DomainType: message.DomainMarketPrice},
			Key:             message.Key{Name: "IBM.N"},
			ServiceListName: "SVG1",
			Streaming:       true,
		}, session.EventHandlerFunc(func(ev *session.Event) {
			log.Printf("%T from %v", ev.Msg, ev.Channel)
		}), nil)
		if err != nil {
			log.Fatal(err)
		}
	}

newDialerはwire.Dialerを実装し、チャネルごとのトランスポートを返却します。
メモリ上のプロバイダーで動作するサンプルは examples/failover を参照してください。
*/
package mdrouter
