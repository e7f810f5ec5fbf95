package market

import "sort"

// DayMillis 一天的毫秒数，日成交量按 timestamp/DayMillis 分桶
const DayMillis int64 = 86_400_000

// Analytics 滚动成交分析聚合器
// 由每笔完成的成交喂入；与注册表一样依赖执行层串行，不加锁
type Analytics struct {
	dailyVolume map[int64]uint64  // 日序号 -> 成交额
	typeCount   map[string]uint64 // 证书类型 -> 成交次数
	priceTrend  map[int64]uint64  // 日序号 -> 平滑价格
}

// TypePopularity 类型热度条目
type TypePopularity struct {
	TypeTag string `json:"type_tag"`
	Sales   uint64 `json:"sales"`
}

// NewAnalytics 创建分析聚合器
func NewAnalytics() *Analytics {
	return &Analytics{
		dailyVolume: make(map[int64]uint64),
		typeCount:   make(map[string]uint64),
		priceTrend:  make(map[int64]uint64),
	}
}

// RecordSale 记录一笔成交
// 价格趋势采用 new = (old+price)/2 的折半平滑，不是真实均值；
// 这是兼容既有数据消费方的既定口径，不要改成算术平均
func (a *Analytics) RecordSale(certType string, price uint64, ts int64) {
	day := ts / DayMillis
	a.dailyVolume[day] += price
	a.typeCount[certType]++

	if old, ok := a.priceTrend[day]; ok {
		a.priceTrend[day] = (old + price) / 2
	} else {
		a.priceTrend[day] = price
	}
}

// DailyVolume 指定日序号的成交额
func (a *Analytics) DailyVolume(day int64) uint64 {
	return a.dailyVolume[day]
}

// PriceTrend 指定日序号的平滑价格，0表示当日无成交
func (a *Analytics) PriceTrend(day int64) uint64 {
	return a.priceTrend[day]
}

// TrendingTypes 按成交次数降序返回前limit个类型
// 次数相同按类型标签升序，保证结果稳定
func (a *Analytics) TrendingTypes(limit int) []TypePopularity {
	entries := make([]TypePopularity, 0, len(a.typeCount))
	for tag, count := range a.typeCount {
		entries = append(entries, TypePopularity{TypeTag: tag, Sales: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Sales != entries[j].Sales {
			return entries[i].Sales > entries[j].Sales
		}
		return entries[i].TypeTag < entries[j].TypeTag
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// SentimentScore 市场情绪评分，始终落在[0,100]
// 以最近两个有成交日的量能对比为依据：放量走高，缩量走低，无数据时中性50
func (a *Analytics) SentimentScore(now int64) uint64 {
	day := now / DayMillis
	today := a.dailyVolume[day]
	yesterday := a.dailyVolume[day-1]

	if today == 0 && yesterday == 0 {
		return 50
	}
	if yesterday == 0 {
		return 100
	}
	// 今日量能相对昨日的百分比，折算到50为中轴的评分
	ratio := today * 50 / yesterday
	score := ratio
	if score > 100 {
		score = 100
	}
	return score
}
