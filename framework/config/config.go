package config

import (
	"encoding/json"
	"os"
)

var Config *AppConfig

type AppConfig struct {
	AppVersion   string `json:"app_version" mapstructure:"app_version"`
	LogConfig    `json:",inline" mapstructure:",inline"`
	ClientConfig `json:",inline" mapstructure:",inline"`
	GenConfig    `json:",inline" mapstructure:",inline"`
	IsDebug      bool `json:"is_debug" mapstructure:"is_debug"`
	PprofPort    int  `json:"pprof_port" mapstructure:"pprof_port"`
}

type ClientConfig struct {
	EtcdEndpoints  string `json:"etcd_endpoints" mapstructure:"etcd_endpoints"`   //etcd地址
	EtcdLeaseTTL   int64  `json:"etcd_lease_ttl" mapstructure:"etcd_lease_ttl"`   //etcd租约时间
	RpcGroup       string `json:"rpc_group" mapstructure:"rpc_group"`             //rpc群组名称，群组之间隔离
	RouteFile      string `json:"route_file" mapstructure:"route_file"`           //生成的路由表文件路径
	ConnectTimeout int    `json:"connect_timeout" mapstructure:"connect_timeout"` //单次连接超时 毫秒
	ConnectRetries int    `json:"connect_retries" mapstructure:"connect_retries"` //连接尝试次数
	RetryDelay     int    `json:"retry_delay" mapstructure:"retry_delay"`         //连接重试间隔 毫秒
	CallTimeout    int    `json:"call_timeout" mapstructure:"call_timeout"`       //调用超时 毫秒
}

type GenConfig struct {
	RootDir     string `json:"root_dir" mapstructure:"root_dir"`         //工程根目录，空则取RPCKIT_ROOT或当前目录
	ServicesDir string `json:"services_dir" mapstructure:"services_dir"` //服务模块目录，相对根目录
	OutDir      string `json:"out_dir" mapstructure:"out_dir"`           //生成产物目录
	ImportBase  string `json:"import_base" mapstructure:"import_base"`   //服务包的导入路径前缀
}

type LogConfig struct {
	LogPath   string `json:"log_path" mapstructure:"log_path"`
	LogName   string `json:"log_name" mapstructure:"log_name"`
	LogLevel  int    `json:"log_level" mapstructure:"log_level"`
	LogStdOut bool   `json:"log_std_out" mapstructure:"log_std_out"`
}

func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	Config = new(AppConfig)
	if len(configFile) == 0 {
		return loadConfigFromEnv(Config)
	}
	if err := loadConfigFromFile(configFile); err != nil {
		return err
	}
	if loadConfigFromEnv != nil {
		return loadConfigFromEnv(Config)
	}
	return nil
}

func loadConfigFromFile(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &Config)
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
