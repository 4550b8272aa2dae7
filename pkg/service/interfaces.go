package service

import (
	"github.com/AccelByte/extend-proactive-intervention/pkg/behavior"
	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/AccelByte/extend-proactive-intervention/pkg/effectiveness"
	"github.com/AccelByte/extend-proactive-intervention/pkg/risk"
	"github.com/AccelByte/extend-proactive-intervention/pkg/scheduler"
	"github.com/AccelByte/extend-proactive-intervention/pkg/timing"
)

// The engine packages own their interfaces; this package only provides the
// Redis, OpenAI, Kafka and AccelByte adapters behind them.
var (
	_ scheduler.Store         = (*RedisInterventionStore)(nil)
	_ dispatch.Store          = (*RedisInterventionStore)(nil)
	_ behavior.HistoryStore   = (*RedisProfileHistoryStore)(nil)
	_ behavior.WeightSource   = (*RedisWeightStore)(nil)
	_ timing.PatternStore     = (*RedisResponsePatternStore)(nil)
	_ risk.ResponseRateSource = (*RedisOutcomeStore)(nil)
	_ dispatch.Generator      = (*OpenAIGenerator)(nil)
	_ dispatch.Channel        = (*KafkaChannel)(nil)
	_ dispatch.RewardGranter  = (*EntitlementService)(nil)
	_ dispatch.StatUpdater    = (*StatisticService)(nil)

	_ effectiveness.InterventionStore = (*RedisInterventionStore)(nil)
	_ effectiveness.OutcomeWriter     = (*RedisOutcomeStore)(nil)
	_ effectiveness.WeightStore       = (*RedisWeightStore)(nil)
	_ effectiveness.PreferenceSource  = (*RedisPreferenceStore)(nil)
)
