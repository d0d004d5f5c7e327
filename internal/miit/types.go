package miit

import "encoding/json"

// Credential is a verified challenge: the challenge identifier plus the sign
// the registry issued for it. Query calls present both.
type Credential struct {
	Identifier string `json:"identifier"`
	Sign       string `json:"sign"`
}

// Challenge is the registry's click-captcha payload. Images are base64 PNGs.
type Challenge struct {
	UUID       string `json:"uuid"`
	BigImage   string `json:"bigImage"`
	SmallImage string `json:"smallImage"`
	SecretKey  string `json:"secretKey"`
	WordCount  int    `json:"wordCount"`
}

// VerifyRequest submits an encrypted click sequence for a challenge.
type VerifyRequest struct {
	Token     string `json:"token"`
	SecretKey string `json:"secretKey"`
	ClientUID string `json:"clientUid"`
	PointJSON string `json:"pointJson"`
}

// QueryResult is one filing row as returned by queryByCondition.
type QueryResult struct {
	ContentTypeName  string `json:"contentTypeName"`
	Domain           string `json:"domain"`
	DomainID         int64  `json:"domainId"`
	LeaderName       string `json:"leaderName"`
	LimitAccess      string `json:"limitAccess"`
	MainID           int64  `json:"mainId"`
	MainLicence      string `json:"mainLicence"`
	NatureName       string `json:"natureName"`
	ServiceID        int64  `json:"serviceId"`
	ServiceLicence   string `json:"serviceLicence"`
	UnitName         string `json:"unitName"`
	UpdateRecordTime string `json:"updateRecordTime"`
}

// QueryPage is one page of filing rows.
type QueryPage struct {
	PageNum int           `json:"pageNum"`
	Total   int           `json:"total"`
	Pages   int           `json:"pages"`
	List    []QueryResult `json:"list"`
}

type envelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Success bool            `json:"success"`
	Params  json.RawMessage `json:"params"`
}

type authParams struct {
	Business string `json:"bussiness"`
	Expire   int64  `json:"expire"`
	Refresh  string `json:"refresh"`
}

type verifyParams struct {
	Sign string `json:"sign"`
}

type queryRequest struct {
	PageNum     int    `json:"pageNum"`
	PageSize    int    `json:"pageSize"`
	UnitName    string `json:"unitName"`
	ServiceType int    `json:"serviceType"`
}
