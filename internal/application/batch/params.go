package batch

import (
	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/entity"
)

// ConfigOverrides 请求级参数覆盖，nil 表示沿用默认值
type ConfigOverrides struct {
	ModelName      *string
	UseMemory      *bool
	ReadCompressed *bool
	UseCompression *bool
	UseState       *bool
	UseWorldBible  *bool
	UpdateState    *bool
	RecentCount    *int
}

// DefaultsFromConfig 将配置文件中的默认值转换为领域配置
func DefaultsFromConfig(d config.GenerationDefaults) entity.GenerationConfig {
	return entity.GenerationConfig{
		ModelName:      d.ModelName,
		UseMemory:      d.UseMemory,
		ReadCompressed: d.ReadCompressed,
		UseCompression: d.UseCompression,
		UseState:       d.UseState,
		UseWorldBible:  d.UseWorldBible,
		UpdateState:    d.UpdateState,
		RecentCount:    d.RecentCount,
	}.Normalize()
}

// Apply 在默认值上叠加覆盖项
func (o *ConfigOverrides) Apply(base entity.GenerationConfig) entity.GenerationConfig {
	if o == nil {
		return base.Normalize()
	}
	if o.ModelName != nil {
		base.ModelName = *o.ModelName
	}
	if o.UseMemory != nil {
		base.UseMemory = *o.UseMemory
	}
	if o.ReadCompressed != nil {
		base.ReadCompressed = *o.ReadCompressed
	}
	if o.UseCompression != nil {
		base.UseCompression = *o.UseCompression
	}
	if o.UseState != nil {
		base.UseState = *o.UseState
	}
	if o.UseWorldBible != nil {
		base.UseWorldBible = *o.UseWorldBible
	}
	if o.UpdateState != nil {
		base.UpdateState = *o.UpdateState
	}
	if o.RecentCount != nil {
		base.RecentCount = *o.RecentCount
	}
	return base.Normalize()
}
