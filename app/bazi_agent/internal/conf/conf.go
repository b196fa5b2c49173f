package conf

type Bootstrap struct {
	Server *Server `json:"server"`
	Agent  *Agent  `json:"agent"`
}

type Server struct {
	Http *HTTP `json:"http"`
}

type HTTP struct {
	Addr    string `json:"addr"`
	Timeout string `json:"timeout"`
}

// Agent 命理智能体引擎配置，时长字段使用 time.ParseDuration 格式
type Agent struct {
	Llm         *LLM         `json:"llm"`
	Yuanfenju   *Yuanfenju   `json:"yuanfenju"`
	Agents      *Agents      `json:"agents"`
	Cache       *Cache       `json:"cache"`
	Log         *Log         `json:"log"`
	Concurrency *Concurrency `json:"concurrency"`
	Db          *DB          `json:"db"`
}

type LLM struct {
	BaseUrl     string  `json:"base_url"`
	ApiKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int32   `json:"max_tokens"`
	TopP        float32 `json:"top_p"`
	Timeout     string  `json:"timeout"`
}

type Yuanfenju struct {
	BaseUrl    string `json:"base_url"`
	ApiKey     string `json:"api_key"`
	Timeout    string `json:"timeout"`
	MaxRetries int32  `json:"max_retries"`
	RetryDelay string `json:"retry_delay"`
}

type Agents struct {
	Enabled   []string `json:"enabled"`
	PromptDir string   `json:"prompt_dir"`
}

type Cache struct {
	Backend string `json:"backend"`
	Ttl     string `json:"ttl"`
	Redis   *Redis `json:"redis"`
}

type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	Db       int32  `json:"db"`
	Prefix   string `json:"prefix"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Concurrency struct {
	Qps int32 `json:"qps"`
	Rpm int32 `json:"rpm"`
}

type DB struct {
	Host     string `json:"host"`
	Port     int32  `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}
