package signature

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SignField - имя поля подписи в параметрах процессинга.
const SignField = "sign"

// Canonicalize приводит набор параметров к канонической строке
// по протоколу процессинга: пустые значения и поле sign отбрасываются,
// ключи сортируются побайтово, нескалярные значения сериализуются
// компактным JSON, пары соединяются как key=value через "&".
func Canonicalize(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SignField {
			continue
		}
		v, ok := scalarize(params[k])
		if !ok || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := scalarize(params[k])
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, "&")
}

// Sign вычисляет подпись над параметрами: секрет дописывается
// к канонической строке без разделителя, результат - MD5 в нижнем
// регистре. Алгоритм зафиксирован протоколом процессинга; замена
// дайджеста ломает совместимость.
func Sign(params map[string]any, secret string) string {
	sum := md5.Sum([]byte(Canonicalize(params) + secret))
	return hex.EncodeToString(sum[:])
}

// Verify пересчитывает подпись по входящим параметрам (без sign)
// и сравнивает с присланной за константное время.
// На любом дефекте входа возвращает false, не паникует.
func Verify(params map[string]any, secret string) bool {
	raw, ok := params[SignField]
	if !ok {
		return false
	}
	provided, ok := raw.(string)
	if !ok || provided == "" {
		return false
	}

	expected := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(provided))) == 1
}

// scalarize сериализует значение параметра в строковую форму.
// nil считается отсутствующим значением.
func scalarize(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case float64:
		// JSON-числа приходят как float64; целые печатаем без мантиссы
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), true
		}
		return fmt.Sprintf("%v", val), true
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", val), true
	case json.RawMessage:
		return string(val), true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
