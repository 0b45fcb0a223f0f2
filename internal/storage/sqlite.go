package storage

import (
	"database/sql/driver"
	"fmt"
	"strings"

	gosqlite "github.com/glebarez/go-sqlite"
)

// sqlite 内置的 LOWER 只处理 ASCII，"École" 与 "école" 无法互相匹配；
// 注册一个按 Unicode 规则转小写的函数供搜索使用
const sqliteLowerFunc = "unicode_lower"

func init() {
	gosqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, func(_ *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return strings.ToLower(fmt.Sprint(v)), nil
		}
	})
}

// lowerFunc 返回当前方言下支持 Unicode 的小写函数名
func (s *Store) lowerFunc() string {
	if s.DB.Dialector.Name() == "sqlite" {
		return sqliteLowerFunc
	}
	return "LOWER"
}
