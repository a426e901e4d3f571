package tlsLayer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	mathrand "math/rand"
	"time"

	"github.com/biter777/countries"
	"github.com/e1732a364fed/tunnel_simple/utils"
)

//使用 ecc p256 方式生成证书. 证书主体信息随机, 以免批量部署时千篇一律.
func GenerateRandomCert_Key() (certPEM []byte, keyPEM []byte) {

	clist := countries.All()
	country := clist[mathrand.Intn(len(clist))]

	companyName := utils.GenerateRandomString()

	subject := pkix.Name{
		Country:            []string{country.Alpha2()},
		Province:           []string{country.Capital().String()},
		Organization:       []string{companyName},
		OrganizationalUnit: []string{""},
		CommonName:         "www." + companyName + ".com",
	}

	max := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, _ := rand.Int(rand.Reader, max)
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      subject,
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	b, err := x509.MarshalECPrivateKey(rootKey)
	if err != nil {
		panic(err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &rootKey.PublicKey, rootKey)
	if err != nil {
		panic(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	return
}

// 会调用 GenerateRandomCert_Key 来生成证书，并生成包含该证书的 []tls.Certificate
func GenerateRandomTLSCert() []tls.Certificate {
	tlsCert, err := tls.X509KeyPair(GenerateRandomCert_Key())
	if err != nil {
		panic(err)
	}
	return []tls.Certificate{tlsCert}
}
