package message

import "fmt"

// DomainTypeは、メッセージのドメインタイプです。
type DomainType uint8

const (
	DomainLogin         DomainType = 1  // ログイン
	DomainSource        DomainType = 4  // ソースディレクトリ
	DomainDictionary    DomainType = 5  // ディクショナリ
	DomainMarketPrice   DomainType = 6  // マーケットプライス
	DomainMarketByOrder DomainType = 7  // マーケットバイオーダー
	DomainMarketByPrice DomainType = 8  // マーケットバイプライス
	DomainMarketMaker   DomainType = 9  // マーケットメーカー
	DomainSymbolList    DomainType = 10 // シンボルリスト
)

func (d DomainType) String() string {
	switch d {
	case DomainLogin:
		return "Login"
	case DomainSource:
		return "Source"
	case DomainDictionary:
		return "Dictionary"
	case DomainMarketPrice:
		return "MarketPrice"
	case DomainMarketByOrder:
		return "MarketByOrder"
	case DomainMarketByPrice:
		return "MarketByPrice"
	case DomainMarketMaker:
		return "MarketMaker"
	case DomainSymbolList:
		return "SymbolList"
	default:
		return fmt.Sprintf("Domain(%d)", uint8(d))
	}
}
